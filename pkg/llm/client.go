// Package llm wraps a chat-completion model for the stages that can delegate
// to one: heading extraction and zero-shot classification.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	// ErrMissingAPIKey is returned when neither the config nor the environment carries a key.
	ErrMissingAPIKey = errors.New("llm: missing API key")

	// ErrEmptyResponse is returned when the model produced no choices.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// APIKeyEnv is consulted when Config.APIKey is empty.
const APIKeyEnv = "OPENAI_API_KEY"

// Config configures the chat-completion client.
type Config struct {
	APIKey      string  `yaml:"api_key" toml:"api_key" json:"-"`
	BaseURL     string  `yaml:"base_url" toml:"base_url" json:"base_url,omitempty"`
	Model       string  `yaml:"model" toml:"model" json:"model"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens"`
	ChunkTokens int     `yaml:"chunk_tokens" toml:"chunk_tokens" json:"chunk_tokens"`
	Temperature float32 `yaml:"temperature" toml:"temperature" json:"temperature"`
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		Model:       openai.GPT4oMini,
		MaxTokens:   1024,
		ChunkTokens: 2000,
	}
}

// ChatAPI is the part of the OpenAI client the package uses.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Chunk is a slice of a larger text with its byte offsets.
type Chunk struct {
	Text  string
	Start int
	End   int
}

// Client sends prompts to a chat model and measures text in model tokens.
type Client struct {
	api    ChatAPI
	config Config
	count  func(string) int
	logger *zap.Logger
}

// New creates a client for the OpenAI-compatible endpoint in config.
func New(config Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = withDefaults(config)

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(APIKeyEnv)
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	count := approximateTokens
	encodingName := EncodingForModel(config.Model)
	if encoding, err := tiktoken.GetEncoding(encodingName); err != nil {
		logger.Warn("token encoding unavailable, using approximate counts",
			zap.String("encoding", encodingName), zap.Error(err))
	} else {
		count = func(text string) int {
			return len(encoding.Encode(text, nil, nil))
		}
	}

	return NewWithAPI(openai.NewClientWithConfig(clientConfig), config, count, logger), nil
}

// NewWithAPI creates a client over an existing ChatAPI. A nil count uses an
// approximation of four bytes per token.
func NewWithAPI(api ChatAPI, config Config, count func(string) int, logger *zap.Logger) *Client {
	if count == nil {
		count = approximateTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:    api,
		config: withDefaults(config),
		count:  count,
		logger: logger,
	}
}

func withDefaults(config Config) Config {
	defaults := DefaultConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.ChunkTokens <= 0 {
		config.ChunkTokens = defaults.ChunkTokens
	}
	return config
}

// ChunkTokens returns the configured chunk size in tokens.
func (client *Client) ChunkTokens() int {
	return client.config.ChunkTokens
}

// Complete sends a system instruction and a user prompt and returns the reply text.
func (client *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	response, err := client.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       client.config.Model,
		Messages:    messages,
		MaxTokens:   client.config.MaxTokens,
		Temperature: client.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion with %s failed: %w", client.config.Model, err)
	}
	if len(response.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	client.logger.Debug("chat completion",
		zap.String("model", client.config.Model),
		zap.Int("prompt_tokens", response.Usage.PromptTokens),
		zap.Int("completion_tokens", response.Usage.CompletionTokens))

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// CountTokens measures text in model tokens.
func (client *Client) CountTokens(text string) int {
	return client.count(text)
}

// Chunk splits text at line boundaries into pieces of at most maxTokens
// tokens. A single line longer than maxTokens becomes its own chunk.
func (client *Client) Chunk(text string, maxTokens int) []Chunk {
	if text == "" {
		return nil
	}
	if maxTokens <= 0 {
		maxTokens = client.config.ChunkTokens
	}

	var chunks []Chunk
	start, tokens := 0, 0
	offset := 0
	for offset < len(text) {
		end := strings.IndexByte(text[offset:], '\n')
		if end < 0 {
			end = len(text)
		} else {
			end += offset + 1
		}

		lineTokens := client.count(text[offset:end])
		if tokens > 0 && tokens+lineTokens > maxTokens {
			chunks = append(chunks, Chunk{Text: text[start:offset], Start: start, End: offset})
			start, tokens = offset, 0
		}
		tokens += lineTokens
		offset = end
	}
	chunks = append(chunks, Chunk{Text: text[start:], Start: start, End: len(text)})

	return chunks
}

// EncodingForModel names the tiktoken encoding used by a model family.
func EncodingForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "o200k_base"
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5-turbo"):
		return "cl100k_base"
	case strings.HasPrefix(model, "text-davinci"), strings.HasPrefix(model, "code-"):
		return "p50k_base"
	}
	return "cl100k_base"
}

func approximateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Truncate shortens text to at most maxTokens tokens, preferring a line
// boundary. The result is a prefix of text.
func (client *Client) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || client.count(text) <= maxTokens {
		return text
	}
	prefix := client.Chunk(text, maxTokens)[0].Text
	for len(prefix) > 0 && client.count(prefix) > maxTokens {
		cut := len(prefix) * maxTokens / client.count(prefix)
		if cut >= len(prefix) {
			cut = len(prefix) - 1
		}
		for cut > 0 && !utf8.RuneStart(prefix[cut]) {
			cut--
		}
		prefix = prefix[:cut]
	}
	return prefix
}
