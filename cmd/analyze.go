package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jojun/internal/analysis"
	"github.com/spigell/jojun/internal/history"
	"github.com/spigell/jojun/internal/ingestion"
)

const (
	PromptNewAnalysis   = "New analysis"
	PromptShowHistory   = "Show history"
	PromptViewEntry     = "View history entry"
	PromptDeleteEntry   = "Delete history entry"
	PromptHistoryToFile = "Dump history to file"
	PromptExit          = "Exit"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptNewAnalysis, PromptShowHistory, PromptViewEntry, PromptDeleteEntry, PromptHistoryToFile, PromptExit},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze how your experience fits a job posting",
	Run: func(cmd *cobra.Command, _ []string) {
		analyze(cmd)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	addSourceFlags(analyzeCmd, "job", "job posting")
	addSourceFlags(analyzeCmd, "exp", "your experience")
	analyzeCmd.Flags().BoolP("auto", "y", false, "print the result and exit without the interactive menu")
	analyzeCmd.Flags().Bool("json-output", false, "print the result as JSON (implies --auto)")
}

type session struct {
	ctx       context.Context
	logger    *zap.Logger
	collector *ingestion.Collector
	analyzer  *analysis.Analyzer
	store     *history.Store
	json      bool
}

func analyze(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := mustLogger()

	config, err := getConfig(viper.GetViper())
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting jojun", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	gateway, err := newGateway(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("creating the ai gateway", zap.Error(err))
	}

	store := history.NewStore(config.History.Capacity)
	s := &session{
		ctx:       ctx,
		logger:    logger,
		collector: newCollector(config, gateway, logger),
		analyzer:  analysis.New(gateway, store, analyzerConfig(config.AI), logger),
		store:     store,
	}
	s.json, _ = cmd.Flags().GetBool("json-output")

	jobSources, err := sourcesFromFlags(cmd, "job")
	if err != nil {
		logger.Fatal("reading job posting inputs", zap.Error(err))
	}
	expSources, err := sourcesFromFlags(cmd, "exp")
	if err != nil {
		logger.Fatal("reading experience inputs", zap.Error(err))
	}

	if err := s.run(jobSources, expSources); err != nil {
		logger.Fatal("exiting", zap.String("reason", err.Error()))
	}

	auto, _ := cmd.Flags().GetBool("auto")
	if auto || s.json {
		return
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := s.handleAction(action); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Error("action failed", zap.String("action", action), zap.Error(err))
		}
	}
}

// run ingests both sides and analyzes them. The returned error only carries
// the user-facing message; diagnostics are logged by the analyzer.
func (s *session) run(job, exp ingestion.Sources) error {
	jobRes, err := s.collector.Collect(s.ctx, job, progressLogger(s.logger, "job"))
	if err != nil {
		return err
	}
	expRes, err := s.collector.Collect(s.ctx, exp, progressLogger(s.logger, "experience"))
	if err != nil {
		return err
	}

	if !s.json {
		printOutcomes(os.Stdout, "Job posting", jobRes)
		printOutcomes(os.Stdout, "Experience", expRes)
	}

	run, err := s.analyzer.Analyze(s.ctx, analysis.Request{JobText: jobRes.Text, ExperienceText: expRes.Text})
	if err != nil {
		var runErr *analysis.Error
		if errors.As(err, &runErr) {
			return errors.New(runErr.UserMessage())
		}
		return err
	}

	if s.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run.Result)
	}

	printResult(os.Stdout, run.Result)
	return nil
}

func (s *session) handleAction(action string) error {
	switch action {
	case PromptNewAnalysis:
		return s.newAnalysis()
	case PromptShowHistory:
		printHistory(os.Stdout, s.store.List())
		return nil
	case PromptViewEntry:
		idx, err := s.askIndex()
		if err != nil {
			return err
		}
		entry, err := s.store.Get(idx)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s\n", entry.Title)
		printResult(os.Stdout, &entry.Data)
		return nil
	case PromptDeleteEntry:
		idx, err := s.askIndex()
		if err != nil {
			return err
		}
		removed, err := s.store.Delete(idx)
		if err != nil {
			return err
		}
		s.logger.Info("history entry deleted", zap.Int("index", idx), zap.String("title", removed.Title))
		return nil
	case PromptHistoryToFile:
		filename, err := s.store.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump history to file: %w", err)
		}
		s.logger.Info("dumping history to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		s.logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func (s *session) newAnalysis() error {
	jobInput, err := (&promptui.Prompt{Label: "Job posting (text, URL or file path)"}).Run()
	if err != nil {
		return err
	}
	expInput, err := (&promptui.Prompt{Label: "Your experience (text, URL or file path)"}).Run()
	if err != nil {
		return err
	}

	job, err := sourcesFromInput(jobInput)
	if err != nil {
		return err
	}
	exp, err := sourcesFromInput(expInput)
	if err != nil {
		return err
	}
	return s.run(job, exp)
}

func (s *session) askIndex() (int, error) {
	if s.store.Len() == 0 {
		return 0, errors.New("history is empty")
	}
	printHistory(os.Stdout, s.store.List())

	input, err := (&promptui.Prompt{
		Label: "Entry #",
		Validate: func(v string) error {
			_, err := strconv.Atoi(v)
			return err
		},
	}).Run()
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(input)
}

// redacted returns a copy of config safe for logging.
func redacted(config *Config) *Config {
	c := *config
	if config.AI != nil && config.AI.Gemini != nil && config.AI.Gemini.APIKey != "" {
		ai := *config.AI
		gemini := *config.AI.Gemini
		gemini.APIKey = "<redacted>"
		ai.Gemini = &gemini
		c.AI = &ai
	}
	return &c
}
