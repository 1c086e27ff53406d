package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jojun/internal/ai"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Normalize documents into plain text without analyzing them",
	Long: "Normalize documents into plain text without analyzing them.\n" +
		"Images are only transcribed when an API key is configured.",
	Run: func(cmd *cobra.Command, _ []string) {
		ingest(cmd)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	addSourceFlags(ingestCmd, "doc", "document")
}

func ingest(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := mustLogger()

	config, err := getConfig(viper.GetViper())
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	var vision ai.Gateway
	if gw, err := newGateway(ctx, config.AI, logger); err != nil {
		logger.Warn("image transcription is disabled", zap.Error(err))
	} else {
		vision = gw
	}

	sources, err := sourcesFromFlags(cmd, "doc")
	if err != nil {
		logger.Fatal("reading inputs", zap.Error(err))
	}

	res, err := newCollector(config, vision, logger).Collect(ctx, sources, progressLogger(logger, "document"))
	if err != nil {
		logger.Fatal("ingestion failed", zap.Error(err))
	}

	printOutcomes(os.Stderr, "Document", res)
	fmt.Println(res.Text)
}
