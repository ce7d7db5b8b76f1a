package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/coolbeans/contracta/pkg/config"
	"github.com/coolbeans/contracta/pkg/document"
	"github.com/coolbeans/contracta/pkg/entity"
	"github.com/coolbeans/contracta/pkg/lei"
	"github.com/coolbeans/contracta/pkg/loader"
	"github.com/coolbeans/contracta/pkg/logging"
	"github.com/coolbeans/contracta/pkg/pipeline"
	"github.com/coolbeans/contracta/pkg/report"
	"github.com/coolbeans/contracta/pkg/validate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "contracta",
		Short: "Legal contract annotator",
		Long: `Contracta reads a contract and annotates it with its section
structure, defined terms and typed entities.

It produces:
  - Sections and subsections with titles and offsets
  - A glossary of defined terms
  - Effective dates, amounts, governing law and parties, normalized
  - Legal entity identifiers from the GLEIF registry (optional)
  - Document type and language`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Configuration file (.yaml or .toml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON lines")

	rootCmd.AddCommand(annotateCmd())
	rootCmd.AddCommand(segmentsCmd())
	rootCmd.AddCommand(glossaryCmd())
	rootCmd.AddCommand(entitiesCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(leiCmd())
	rootCmd.AddCommand(batchCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// environment is the configuration and logger shared by every subcommand.
type environment struct {
	config config.Config
	logger *zap.Logger
}

func setup(cmd *cobra.Command) (*environment, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonLogs, _ := cmd.Flags().GetBool("json-logs")
	configPath, _ := cmd.Flags().GetString("config")

	logger, err := logging.New(logging.Options{Verbose: verbose, JSON: jsonLogs})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	cfg := config.Default()
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Debug("configuration loaded", zap.String("path", configPath))
	}

	if cmd.Flags().Lookup("lei") != nil {
		if enabled, _ := cmd.Flags().GetBool("lei"); enabled {
			cfg.LEI.Enabled = true
		}
	}
	if cmd.Flags().Lookup("rules-dir") != nil {
		if dir, _ := cmd.Flags().GetString("rules-dir"); dir != "" {
			cfg.RulesDir = dir
		}
	}

	return &environment{config: cfg, logger: logger}, nil
}

func (env *environment) pipeline() (*pipeline.Pipeline, error) {
	p, err := pipeline.FromConfig(env.config, pipeline.Dependencies{Logger: env.logger})
	if err != nil {
		return nil, fmt.Errorf("failed to assemble pipeline: %w", err)
	}
	env.logger.Debug("pipeline assembled", zap.Strings("stages", p.Names()))
	return p, nil
}

// annotateSource loads and annotates the file named by --source.
func annotateSource(cmd *cobra.Command) (*document.Document, error) {
	source, _ := cmd.Flags().GetString("source")
	if source == "" {
		return nil, fmt.Errorf("--source flag is required")
	}

	env, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	defer env.logger.Sync()

	p, err := env.pipeline()
	if err != nil {
		return nil, err
	}

	loaded, err := loader.Load(source)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	doc := loaded.Document()
	if err := p.Process(cmd.Context(), doc); err != nil {
		return nil, fmt.Errorf("failed to annotate %s: %w", source, err)
	}
	env.logger.Debug("document annotated",
		zap.String("source", source),
		zap.Duration("elapsed", time.Since(startTime)))
	return doc, nil
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("source", "s", "", "Contract file (.txt, .md or .pdf)")
	cmd.Flags().String("format", "text", "Output format: text or json")
	cmd.Flags().Bool("lei", false, "Look up legal entities in the GLEIF registry")
	cmd.Flags().String("rules-dir", "", "Directory of YAML rule catalogs")
}

func renderer() *report.Renderer {
	return report.NewRenderer(report.Options{})
}

func annotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Annotate a contract",
		Long: `Run the full annotation pipeline over a contract.

Example:
  contracta annotate --source agreement.pdf
  contracta annotate --source agreement.txt --format json --output agreement.json --lei`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			check, _ := cmd.Flags().GetBool("check")

			doc, err := annotateSource(cmd)
			if err != nil {
				return err
			}

			if check {
				checkReport := validate.NewChecker(validate.Config{}).Check(doc)
				fmt.Fprint(os.Stderr, checkReport.String())
				if !checkReport.OverallPass {
					return fmt.Errorf("annotation checks failed")
				}
			}

			var w io.Writer = os.Stdout
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer file.Close()
				w = file
			}

			switch format {
			case "json":
				return report.WriteJSON(w, report.NewAnnotation(doc))
			case "text":
				r := renderer()
				if output != "" {
					r = report.NewRenderer(report.Options{NoColor: true})
				}
				_, err := io.WriteString(w, r.Document(doc))
				return err
			default:
				return fmt.Errorf("unsupported format: %s", format)
			}
		},
	}

	addSourceFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "Write the result to a file")
	cmd.Flags().Bool("check", false, "Verify offsets, coverage and overlap of the annotations")

	return cmd
}

func segmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segments",
		Short: "List the sections of a contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			toc, _ := cmd.Flags().GetBool("toc")
			doc, err := annotateSource(cmd)
			if err != nil {
				return err
			}
			if format == "json" {
				if toc {
					return report.WriteJSON(os.Stdout, doc.TableOfContents())
				}
				return report.WriteJSON(os.Stdout, doc.Segments)
			}
			if toc {
				fmt.Print(renderer().TableOfContents(doc))
				return nil
			}
			fmt.Print(renderer().Segments(doc))
			return nil
		},
	}
	addSourceFlags(cmd)
	cmd.Flags().Bool("toc", false, "Print only the titled sections as an outline")
	return cmd
}

func glossaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glossary",
		Short: "List the defined terms of a contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			doc, err := annotateSource(cmd)
			if err != nil {
				return err
			}
			if format == "json" {
				return report.WriteJSON(os.Stdout, doc.Glossary)
			}
			fmt.Print(renderer().Glossary(doc))
			return nil
		},
	}
	addSourceFlags(cmd)
	return cmd
}

func entitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List the entities found in a contract",
		Long: `List the entities found in a contract, optionally for one label.

Example:
  contracta entities --source agreement.txt --label gov_law`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			label, _ := cmd.Flags().GetString("label")
			doc, err := annotateSource(cmd)
			if err != nil {
				return err
			}
			if format == "json" {
				entities := doc.Entities
				if label != "" {
					entities = doc.EntitiesByLabel(label)
				}
				return report.WriteJSON(os.Stdout, entities)
			}
			fmt.Print(renderer().Entities(doc, label))
			return nil
		},
	}
	addSourceFlags(cmd)
	cmd.Flags().String("label", "", "Only entities with this label")
	return cmd
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect entity rule catalogs",
		Long: `Inspect the built-in rule catalogs and those in a directory.

Examples:
  contracta rules list --dir rules
  contracta rules validate --dir rules
  contracta rules watch --dir rules`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesValidateCmd())
	cmd.AddCommand(rulesWatchCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rule catalogs",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			builtIn, err := entity.DefaultRuleSets()
			if err != nil {
				return err
			}
			fmt.Println("Built-in rule catalogs:")
			for _, ruleSet := range builtIn {
				printRuleSet(ruleSet)
			}

			if dir == "" {
				return nil
			}
			registry := entity.NewCatalogRegistry(nil)
			if err := registry.LoadDirectory(dir); err != nil {
				return fmt.Errorf("failed to load rule catalogs: %w", err)
			}
			fmt.Printf("\nRule catalogs in %s:\n", dir)
			for _, ruleSet := range registry.List() {
				printRuleSet(ruleSet)
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Directory of YAML rule catalogs")
	return cmd
}

func printRuleSet(ruleSet *entity.RuleSet) {
	fmt.Printf("  %-16s v%-8s label=%-16s rules=%d", ruleSet.Name, ruleSet.Version, ruleSet.Label, len(ruleSet.Rules))
	if ruleSet.Normalizer != "" {
		fmt.Printf(" normalizer=%s", ruleSet.Normalizer)
	}
	if len(ruleSet.Keywords) > 0 {
		fmt.Printf(" keywords=%s", strings.Join(ruleSet.Keywords, ","))
	}
	fmt.Println()
}

func rulesValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the rule catalogs in a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				return fmt.Errorf("--dir flag is required")
			}

			registry := entity.NewCatalogRegistry(nil)
			if err := registry.LoadDirectory(dir); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Printf("%d rule catalogs valid\n", registry.Count())
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Directory of YAML rule catalogs")
	return cmd
}

func rulesWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload rule catalogs as they change",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				return fmt.Errorf("--dir flag is required")
			}

			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			registry, err := entity.NewCatalogRegistryWithDirectory(dir, env.logger)
			if err != nil {
				return fmt.Errorf("failed to load rule catalogs: %w", err)
			}
			registry.SetOnChange(func(event string, ruleSet *entity.RuleSet) {
				fmt.Printf("%s %s\n", event, ruleSet.Name)
			})
			if err := registry.Watch(); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			defer registry.StopWatch()

			fmt.Printf("Watching %s (%d rule catalogs). Press Ctrl+C to stop.\n", dir, registry.Count())
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Directory of YAML rule catalogs")
	return cmd
}

func leiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lei",
		Short: "Query the GLEIF legal entity registry",
	}
	cmd.AddCommand(leiLookupCmd())
	return cmd
}

func leiLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup NAME",
		Short: "Look up a legal entity by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")

			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			client := lei.NewClient(lei.Config{
				BaseURL:   env.config.LEI.BaseURL,
				Timeout:   env.config.LEI.Timeout.Std(),
				RateLimit: env.config.LEI.RateLimit.Std(),
				CacheTTL:  env.config.LEI.CacheTTL.Std(),
			}, env.logger)

			record, err := client.Lookup(cmd.Context(), args[0])
			if errors.Is(err, lei.ErrNotFound) {
				records, searchErr := client.Search(cmd.Context(), args[0])
				if searchErr != nil {
					return searchErr
				}
				fmt.Printf("No exact match for %q.\n", args[0])
				for _, candidate := range records {
					fmt.Printf("  %s  %s\n", candidate.LEI, candidate.LegalName)
				}
				return nil
			}
			if err != nil {
				return err
			}

			if format == "json" {
				return report.WriteJSON(os.Stdout, record)
			}
			fmt.Printf("LEI:         %s\n", record.LEI)
			fmt.Printf("Legal name:  %s\n", record.LegalName)
			if record.Status != "" {
				fmt.Printf("Status:      %s\n", record.Status)
			}
			address := record.Headquarters
			if address.City != "" || address.Country != "" {
				fmt.Printf("HQ:          %s\n", strings.Join(nonEmpty(
					strings.Join(address.Lines, ", "), address.City, address.Region, address.PostalCode, address.Country), ", "))
			}
			return nil
		},
	}
	cmd.Flags().String("format", "text", "Output format: text or json")
	return cmd
}

func nonEmpty(values ...string) []string {
	var kept []string
	for _, value := range values {
		if value != "" {
			kept = append(kept, value)
		}
	}
	return kept
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Annotate every contract in a directory",
		Long: `Annotate every .txt, .md and .pdf file under a directory.

Example:
  contracta batch --dir contracts --workers 8 --output-dir annotations`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			workers, _ := cmd.Flags().GetInt("workers")
			outputDir, _ := cmd.Flags().GetString("output-dir")
			if dir == "" {
				return fmt.Errorf("--dir flag is required")
			}

			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			p, err := env.pipeline()
			if err != nil {
				return err
			}

			var docs []*document.Document
			err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
				if err != nil || entry.IsDir() {
					return err
				}
				switch strings.ToLower(filepath.Ext(path)) {
				case ".txt", ".md", ".pdf":
				default:
					return nil
				}
				loaded, err := loader.Load(path)
				if err != nil {
					env.logger.Warn("skipping unreadable file", zap.String("path", path), zap.Error(err))
					return nil
				}
				docs = append(docs, loaded.Document())
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", dir, err)
			}

			if outputDir != "" {
				if err := os.MkdirAll(outputDir, 0755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", outputDir, err)
				}
			}

			startTime := time.Now()
			results := p.Batch(cmd.Context(), docs, workers)
			failed := 0
			for _, result := range results {
				if result.Err != nil {
					failed++
					fmt.Printf("  FAIL %s: %v\n", result.Document.Source, result.Err)
					continue
				}
				fmt.Printf("  OK   %s (%d segments, %d definitions, %d entities)\n",
					result.Document.Source, len(result.Document.Segments), len(result.Document.Glossary), len(result.Document.Entities))
				if outputDir != "" {
					if err := writeAnnotation(outputDir, result.Document); err != nil {
						return err
					}
				}
			}
			fmt.Printf("\n%d documents annotated, %d failed in %s\n", len(results)-failed, failed, time.Since(startTime).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Directory of contracts")
	cmd.Flags().Int("workers", 4, "Documents processed at once")
	cmd.Flags().String("output-dir", "", "Write one JSON annotation per document here")
	cmd.Flags().Bool("lei", false, "Look up legal entities in the GLEIF registry")
	cmd.Flags().String("rules-dir", "", "Directory of YAML rule catalogs")
	return cmd
}

func writeAnnotation(dir string, doc *document.Document) error {
	name := strings.TrimSuffix(filepath.Base(doc.Source), filepath.Ext(doc.Source)) + ".json"
	file, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()
	return report.WriteJSON(file, report.NewAnnotation(doc))
}
