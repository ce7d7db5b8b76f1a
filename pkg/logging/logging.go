// Package logging builds the process logger for the command line.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the log level and encoding.
type Options struct {
	// Verbose enables debug output.
	Verbose bool

	// JSON switches from the console encoder to JSON lines.
	JSON bool
}

// New builds a logger writing to stderr.
func New(options Options) (*zap.Logger, error) {
	var config zap.Config
	if options.JSON {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.DisableStacktrace = true
	}

	level := zapcore.WarnLevel
	if options.Verbose {
		level = zapcore.DebugLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	return config.Build()
}
