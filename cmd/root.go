package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/jojun/internal/analysis"
	"github.com/spigell/jojun/internal/fetch"
	"github.com/spigell/jojun/internal/history"
	"github.com/spigell/jojun/internal/ingestion"
)

const (
	app       = "jojun"
	envPrefix = "JOJUN"
)

type Config struct {
	UserAgent string           `mapstructure:"user-agent"`
	AI        *AIConfig        `mapstructure:"ai"`
	Ingestion *IngestionConfig `mapstructure:"ingestion"`
	History   *HistoryConfig   `mapstructure:"history"`
}

type AIConfig struct {
	Provider          string        `mapstructure:"provider"`
	CallTimeout       time.Duration `mapstructure:"call-timeout"`
	MaxRetries        int           `mapstructure:"max-retries"`
	ParallelFollowups bool          `mapstructure:"parallel-followups"`
	StrictValidation  bool          `mapstructure:"strict-validation"`
	Gemini            *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string   `mapstructure:"api-key"`
	APIKeyFile   string   `mapstructure:"api-key-file"`
	Model        string   `mapstructure:"model"`
	Temperature  *float32 `mapstructure:"temperature"`
	MaxLogLength int      `mapstructure:"max-log-length"`
}

type IngestionConfig struct {
	Workers     int   `mapstructure:"workers"`
	MaxFileSize int64 `mapstructure:"max-file-size"`
}

type HistoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jojun compares a job posting with your experience and prepares you for the interview",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jojun.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("user-agent", fetch.DefaultUserAgent)
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.call-timeout", analysis.DefaultCallTimeout)
	v.SetDefault("ai.max-retries", analysis.DefaultMaxRetries)
	v.SetDefault("ai.parallel-followups", true)
	v.SetDefault("ai.strict-validation", false)
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.max-log-length", 200)
	v.SetDefault("ingestion.workers", ingestion.DefaultWorkers)
	v.SetDefault("ingestion.max-file-size", ingestion.DefaultMaxFileSize)
	v.SetDefault("history.capacity", history.DefaultCapacity)
}

func initConfig() {
	// A missing .env is normal; a broken one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if err := readConfig(viper.GetViper(), cfgFile); err != nil {
		log.Fatal(err)
	}
}

// readConfig wires env overrides and reads the config file. Without an
// explicit path a missing jojun.yaml is not an error.
func readConfig(v *viper.Viper, path string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("ai.gemini.temperature"); err != nil {
		return err
	}

	if path != "" {
		v.SetConfigFile(path)
		return v.ReadInConfig()
	}

	v.AddConfigPath(".")
	v.SetConfigName(app)
	v.SetConfigType("yaml")

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return err
	}
	return nil
}

func getConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		config = &Config{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.Ingestion == nil {
		config.Ingestion = &IngestionConfig{}
	}
	if config.History == nil {
		config.History = &HistoryConfig{}
	}
	return config, nil
}
