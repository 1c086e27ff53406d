package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jojun/internal/ai"
	"github.com/spigell/jojun/internal/ai/gemini"
	"github.com/spigell/jojun/internal/analysis"
	"github.com/spigell/jojun/internal/fetch"
	"github.com/spigell/jojun/internal/ingestion"
	"github.com/spigell/jojun/internal/logger"
	"github.com/spigell/jojun/internal/secrets"
)

var apiKeyEnv = []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}

func mustLogger() *zap.Logger {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating a logger: %s\n", err)
		os.Exit(1)
	}
	return l
}

func resolveAPIKey(cfg *AIConfig) (string, error) {
	return secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   apiKeyEnv,
	})
}

func newGateway(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Gateway, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != gemini.Provider {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := resolveAPIKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file, GOOGLE_API_KEY or GEMINI_API_KEY)", err)
	}

	gw, err := gemini.NewGateway(ctx, apiKey, gemini.Options{
		Model:        cfg.Gemini.Model,
		Temperature:  cfg.Gemini.Temperature,
		MaxLogLength: cfg.Gemini.MaxLogLength,
	}, log)
	if err != nil {
		return nil, err
	}
	return gw, nil
}

func newCollector(config *Config, vision ai.Gateway, log *zap.Logger) *ingestion.Collector {
	dispatcher := ingestion.NewDispatcher(ingestion.Config{
		Workers:     config.Ingestion.Workers,
		MaxFileSize: config.Ingestion.MaxFileSize,
		OCRTimeout:  config.AI.CallTimeout,
	}, vision, log)

	fetcher := fetch.New(log)
	if ua := strings.TrimSpace(config.UserAgent); ua != "" {
		fetcher.UserAgent = ua
	}

	return ingestion.NewCollector(dispatcher, fetcher, log)
}

func analyzerConfig(cfg *AIConfig) analysis.Config {
	c := analysis.DefaultConfig()
	c.CallTimeout = cfg.CallTimeout
	c.MaxRetries = cfg.MaxRetries
	c.ParallelFollowups = cfg.ParallelFollowups
	c.StrictValidation = cfg.StrictValidation
	return c
}

// addSourceFlags registers the --<side>-text/url/file/image flags.
func addSourceFlags(cmd *cobra.Command, side, description string) {
	cmd.Flags().String(side+"-text", "", description+" as plain text")
	cmd.Flags().String(side+"-url", "", "a web page with the "+description)
	cmd.Flags().StringSlice(side+"-file", nil, "files with the "+description+" (pdf, pptx, txt, md, jpg, jpeg, png)")
	cmd.Flags().StringSlice(side+"-image", nil, "images with the "+description+" to transcribe (e.g. screenshots)")
}

func sourcesFromFlags(cmd *cobra.Command, side string) (ingestion.Sources, error) {
	var src ingestion.Sources
	var err error

	if src.Text, err = cmd.Flags().GetString(side + "-text"); err != nil {
		return src, err
	}
	if src.URL, err = cmd.Flags().GetString(side + "-url"); err != nil {
		return src, err
	}

	files, err := cmd.Flags().GetStringSlice(side + "-file")
	if err != nil {
		return src, err
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return src, fmt.Errorf("reading %s: %w", path, err)
		}
		src.Files = append(src.Files, ingestion.NewRawInput(filepath.Base(path), data))
	}

	images, err := cmd.Flags().GetStringSlice(side + "-image")
	if err != nil {
		return src, err
	}
	for _, path := range images {
		data, err := os.ReadFile(path)
		if err != nil {
			return src, fmt.Errorf("reading %s: %w", path, err)
		}
		src.Images = append(src.Images, data)
	}

	return src, nil
}

// sourcesFromInput interprets one line typed in the interactive loop: an
// http(s) URL, an existing file path, or plain text.
func sourcesFromInput(input string) (ingestion.Sources, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return ingestion.Sources{URL: input}, nil
	}

	if info, err := os.Stat(input); err == nil && !info.IsDir() {
		data, err := os.ReadFile(input)
		if err != nil {
			return ingestion.Sources{}, fmt.Errorf("reading %s: %w", input, err)
		}
		return ingestion.Sources{Files: []ingestion.RawInput{ingestion.NewRawInput(filepath.Base(input), data)}}, nil
	}

	return ingestion.Sources{Text: input}, nil
}

func progressLogger(log *zap.Logger, side string) ingestion.ProgressFunc {
	return func(p ingestion.Progress) {
		log.Info("ingestion progress",
			zap.String("side", side),
			zap.String(logger.FieldFile, p.Name),
			zap.Int("done", p.Done),
			zap.Int("total", p.Total),
			zap.String("fraction", fmt.Sprintf("%.0f%%", p.Fraction()*100)),
		)
	}
}
