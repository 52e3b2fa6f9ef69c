package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/coolbeans/regula/pkg/apply"
	"github.com/coolbeans/regula/pkg/cache"
	"github.com/coolbeans/regula/pkg/config"
	"github.com/coolbeans/regula/pkg/corpus"
	"github.com/coolbeans/regula/pkg/decompose"
	"github.com/coolbeans/regula/pkg/identify"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/model"
	"github.com/coolbeans/regula/pkg/pipeline"
	"github.com/coolbeans/regula/pkg/reconstruct"
	"github.com/coolbeans/regula/pkg/reflink"
	"github.com/coolbeans/regula/pkg/reflocate"
	"github.com/coolbeans/regula/pkg/refresolve"
	"github.com/coolbeans/regula/pkg/splitter"
	"github.com/coolbeans/regula/pkg/validate"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline over a bill and write its legal-state result",
		Long: `Split a bill into amendment chunks, resolve each chunk's target
article, apply and validate the amendment, and synthesize a before/after
legal-state record for every chunk.

Example:
  amendex run --input bill.txt --output result.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath, _ := cmd.Flags().GetString("input")
			outputPath, _ := cmd.Flags().GetString("output")
			if inputPath == "" {
				return fmt.Errorf("--input flag is required")
			}

			billText, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("reading bill file: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := buildLogger(cfg)
			client, err := buildClient(cfg)
			if err != nil {
				return err
			}
			p, _, _, err := buildPipeline(cfg, client, log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout()*120)
			defer cancel()

			result, err := p.Run(ctx, string(billText))
			if err != nil {
				return fmt.Errorf("running pipeline: %w", err)
			}

			export := result.ToExport(time.Now().UTC().Format(time.RFC3339), uuid.NewString())
			if outputPath == "" {
				outputPath = pipeline.DefaultResultFilename("amendex_result", time.Now())
			}
			if err := pipeline.WriteJSON(outputPath, export); err != nil {
				return fmt.Errorf("writing result: %w", err)
			}

			fmt.Printf("Processed %d chunks: %d outputs, %d failed. Result written to %s\n",
				result.TotalChunks, len(result.Outputs), len(result.Failed), outputPath)
			return nil
		},
	}
	cmd.Flags().StringP("input", "i", "", "Bill text file")
	cmd.Flags().StringP("output", "o", "", "Result JSON output path")
	return cmd
}

func splitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a bill into atomic amendment chunks",
		Long: `Run BillSplitter alone and report the chunks it produced, without
resolving or applying any amendment.

Example:
  amendex split --input bill.txt
  amendex split --input bill.txt --export chunks.ndjson`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath, _ := cmd.Flags().GetString("input")
			exportPath, _ := cmd.Flags().GetString("export")
			if inputPath == "" {
				return fmt.Errorf("--input flag is required")
			}

			billText, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("reading bill file: %w", err)
			}

			chunks := splitter.New().Split(string(billText))
			fmt.Printf("%d chunks\n", len(chunks))
			for _, c := range chunks {
				fmt.Printf("  %s  %v\n", c.ChunkID, c.HierarchyPath)
			}

			if exportPath != "" {
				if err := pipeline.WriteChunksNDJSON(exportPath, chunks); err != nil {
					return fmt.Errorf("writing chunk export: %w", err)
				}
				fmt.Printf("Wrote %d chunks to %s\n", len(chunks), exportPath)
			}
			return nil
		},
	}
	cmd.Flags().StringP("input", "i", "", "Bill text file")
	cmd.Flags().String("export", "", "Write the split chunks as newline-delimited JSON to this path")
	return cmd
}

func identifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Identify the target article and operation type of every chunk in a bill",
		Long: `Split a bill and run TargetArticleIdentifier over every resulting
chunk, reporting an aggregate operation-type and confidence histogram.

Example:
  amendex identify --input bill.txt
  amendex identify --input bill.txt --report identify-report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath, _ := cmd.Flags().GetString("input")
			reportPath, _ := cmd.Flags().GetString("report")
			if inputPath == "" {
				return fmt.Errorf("--input flag is required")
			}

			billText, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("reading bill file: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := buildClient(cfg)
			if err != nil {
				return err
			}
			c, err := newCache(cfg)
			if err != nil {
				return err
			}

			chunks := splitter.New().Split(string(billText))
			id := identify.New(client, c)

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout()*time.Duration(len(chunks)+1))
			defer cancel()

			result := id.IdentifyBatch(ctx, chunks, cfg.ConfidenceThreshold)
			fmt.Println(result.Summary())

			if reportPath != "" {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling report: %w", err)
				}
				if err := os.WriteFile(reportPath, data, 0o644); err != nil {
					return fmt.Errorf("writing report: %w", err)
				}
				fmt.Printf("Report written to %s\n", reportPath)
			}
			return nil
		},
	}
	cmd.Flags().StringP("input", "i", "", "Bill text file")
	cmd.Flags().String("report", "", "Write the aggregate identification report as JSON to this path")
	return cmd
}

func reconstructCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconstruct",
		Short: "Reconstruct a single article amendment",
		Long: `Decompose an amendment instruction into atomic operations, apply
them against an article's original text, and validate the result for
legal coherence — without running the full pipeline's splitting or
reference resolution stages.

The original text is read from --original-file when given, otherwise
fetched from the configured corpus by --code/--article.

Example:
  amendex reconstruct --code "code civil" --article "L. 1" \
    --instruction "Les mots « anciens » sont remplacés par les mots « nouveaux »."`,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("code")
			article, _ := cmd.Flags().GetString("article")
			instruction, _ := cmd.Flags().GetString("instruction")
			originalFile, _ := cmd.Flags().GetString("original-file")
			if instruction == "" {
				return fmt.Errorf("--instruction flag is required")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := buildLogger(cfg)
			client, err := buildClient(cfg)
			if err != nil {
				return err
			}
			c, err := newCache(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout()*4)
			defer cancel()

			originalText, err := resolveOriginalText(ctx, cfg, c, client, code, article, originalFile)
			if err != nil {
				return err
			}

			decomposer := decompose.New(client, c)
			applier := apply.New(client, c)
			validator := validate.NewReconstructionValidator(client, c)
			reconstructor := reconstruct.New(decomposer, applier, validator, "", log)

			result := reconstructor.ReconstructAmendment(ctx, originalText, instruction, article, "cli")
			return printJSON(result)
		},
	}
	cmd.Flags().String("code", "", "Target code name (e.g. \"code civil\")")
	cmd.Flags().String("article", "", "Target article identifier (e.g. \"L. 1\")")
	cmd.Flags().String("instruction", "", "Amendment instruction text")
	cmd.Flags().String("original-file", "", "File containing the article's original text (skips corpus lookup)")
	return cmd
}

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Locate, link, and resolve the legal references in a reconstructed fragment",
		Long: `Run ReferenceLocator, ReferenceObjectLinker, and ReferenceResolver
over a ReconstructorOutput JSON file, the way the full pipeline does for
each chunk after reconstruction.

Example:
  amendex resolve --input reconstructor-output.json --code "code civil" --article "L. 1"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath, _ := cmd.Flags().GetString("input")
			code, _ := cmd.Flags().GetString("code")
			article, _ := cmd.Flags().GetString("article")
			opType, _ := cmd.Flags().GetString("op")
			originalFile, _ := cmd.Flags().GetString("original-file")
			if inputPath == "" {
				return fmt.Errorf("--input flag is required")
			}

			data, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("reading reconstructor output: %w", err)
			}
			var output model.ReconstructorOutput
			if err := json.Unmarshal(data, &output); err != nil {
				return fmt.Errorf("parsing reconstructor output: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := buildClient(cfg)
			if err != nil {
				return err
			}
			c, err := newCache(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout()*4)
			defer cancel()

			originalText := ""
			if originalFile != "" {
				raw, err := os.ReadFile(originalFile)
				if err != nil {
					return fmt.Errorf("reading original text file: %w", err)
				}
				originalText = string(raw)
			}

			locator := reflocate.New(client, c).WithMinConfidence(cfg.ConfidenceThreshold)
			located, err := locator.Locate(ctx, output)
			if err != nil {
				return fmt.Errorf("locating references: %w", err)
			}

			linker := reflink.New(client, c)
			linked := linker.LinkReferences(ctx, located, output)

			retriever := corpus.New(cfg.Corpus.FrenchCodeRoot, c, nil, client)
			resolver := refresolve.New(client, c, retriever, cfg.Corpus.EURegulationRoot)
			target := &model.TargetArticle{
				OperationType: model.OperationType(opType),
				Code:          code,
				Article:       article,
				Confidence:    1.0,
			}
			resolution := resolver.ResolveReferences(ctx, linked, originalText, target)
			return printJSON(resolution)
		},
	}
	cmd.Flags().StringP("input", "i", "", "ReconstructorOutput JSON file")
	cmd.Flags().String("code", "", "Target code name, for resolving definitional references")
	cmd.Flags().String("article", "", "Target article identifier, for resolving definitional references")
	cmd.Flags().String("op", string(model.OpModify), "Target operation type (INSERT, MODIFY, ABROGATE, RENUMBER, OTHER)")
	cmd.Flags().String("original-file", "", "File containing the article's original text")
	return cmd
}

func cacheCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the pipeline's disk cache",
	}

	clear := &cobra.Command{
		Use:   "clear [component]",
		Short: "Remove cached entries, optionally scoped to one component",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			component := ""
			if len(args) > 0 {
				component = args[0]
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := newCache(cfg)
			if err != nil {
				return err
			}

			removed, err := c.Invalidate(component)
			if err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}
			if component == "" {
				fmt.Printf("Removed %d cache entries\n", removed)
			} else {
				fmt.Printf("Removed %d cache entries for component %q\n", removed, component)
			}
			return nil
		},
	}
	root.AddCommand(clear)
	return root
}

func corpusCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "corpus",
		Short: "Maintain the local article-text corpus",
	}

	normalize := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize roman-numeral headers and numbered-item spacing across the corpus",
		Long: `Rewrite corpus text files in place so section headers and numbered
items use the consistent spacing the retriever's regex-based carving
relies on. Idempotent: running it twice changes nothing the second time.

Example:
  amendex corpus normalize --dir ./corpus/fr`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				return fmt.Errorf("--dir flag is required")
			}
			stats, err := corpus.NormalizeDir(dir)
			if err != nil {
				return fmt.Errorf("normalizing corpus: %w", err)
			}
			fmt.Println(stats.Summary())
			return nil
		},
	}
	normalize.Flags().String("dir", "", "Corpus directory to normalize in place")
	root.AddCommand(normalize)
	return root
}

// resolveOriginalText reads originalFile when given, otherwise fetches
// code/article from the configured corpus, with the same hierarchical
// fallback FetchForTarget uses inside the full pipeline.
func resolveOriginalText(ctx context.Context, cfg *config.PipelineConfig, c *cache.Cache, client *llm.Client, code, article, originalFile string) (string, error) {
	if originalFile != "" {
		data, err := os.ReadFile(originalFile)
		if err != nil {
			return "", fmt.Errorf("reading original text file: %w", err)
		}
		return string(data), nil
	}
	if code == "" || article == "" {
		return "", fmt.Errorf("either --original-file or both --code and --article must be given")
	}

	retriever := corpus.New(cfg.Corpus.FrenchCodeRoot, c, nil, client)
	text, _, err := retriever.FetchArticleText(ctx, code, article)
	if err != nil {
		return "", fmt.Errorf("fetching original text from corpus: %w", err)
	}
	return text, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func newCache(cfg *config.PipelineConfig) (*cache.Cache, error) {
	return cache.New(cfg.Cache.Dir)
}
