// Package config loads subvertnews configuration from environment
// variables (and an optional .env file for local development) via viper,
// following the same load-once/env-override shape the rest of the corpus
// uses for its CLI tools.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        App        `mapstructure:"app"`
	Stages     Stages     `mapstructure:"stages"`
	Tournament Tournament `mapstructure:"tournament"`
	Ingest     Ingest     `mapstructure:"ingest"`
	Subvert    Subvert    `mapstructure:"subvert"`
	Store      Store      `mapstructure:"store"`
	Server     Server     `mapstructure:"server"`
}

// App holds general application configuration.
type App struct {
	Debug        bool   `mapstructure:"debug"`
	LogLevel     string `mapstructure:"log_level"`
	DataDir      string `mapstructure:"data_dir"`
	EditorialTZ  string `mapstructure:"editorial_timezone"` // fixed: America/New_York
}

// StageBinding is a (provider, model) pair bound to one pipeline stage.
type StageBinding struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

// Stages binds each LLM call site in the pipeline to a provider+model,
// per spec §6: {STAGE}_PROVIDER / {STAGE}_MODEL.
type Stages struct {
	Brainstorm          StageBinding `mapstructure:"brainstorm"`
	Generate            StageBinding `mapstructure:"generate"`
	Tournament          StageBinding `mapstructure:"tournament"`
	TournamentFinals    StageBinding `mapstructure:"tournament_finals"`
	TournamentElim      StageBinding `mapstructure:"tournament_elimination"`
	Polish              StageBinding `mapstructure:"polish"`
	AnthropicAPIKey     string       `mapstructure:"anthropic_api_key"`
	GeminiAPIKey        string       `mapstructure:"gemini_api_key"`
}

// Tournament holds Tournament Engine tuning knobs.
type Tournament struct {
	SurvivorCohortSize int           `mapstructure:"survivor_cohort_size"` // K, default 64
	GroupSize          int           `mapstructure:"group_size"`           // target per elimination group, default 15
	FinalRoundMax      int           `mapstructure:"final_round_max"`      // final round threshold, default 20
	GroupPoolSize      int           `mapstructure:"group_pool_size"`      // bounded worker pool, default 50
	PolishTopN         int           `mapstructure:"polish_top_n"`         // default 16
	FinalAfterBatch    int           `mapstructure:"final_after_batch"`    // B >= this is a final run, default 4
	FinalAfterHour     int           `mapstructure:"final_after_hour"`     // editorial-hour >= this is a final run, default 21
	Verbose            bool          `mapstructure:"verbose"`              // request judge explanations
	CallTimeout        time.Duration `mapstructure:"call_timeout"`         // per-LLM-call timeout, default 30s
	RunBudget          time.Duration `mapstructure:"run_budget"`           // whole-run wall clock budget
	LockTTL            time.Duration `mapstructure:"lock_ttl"`             // per-day tournament lease
}

// Ingest holds Story Ingestor tuning knobs and the news source connection.
type Ingest struct {
	APIKey            string   `mapstructure:"api_key"`
	Endpoint          string   `mapstructure:"endpoint"`
	Categories        []string `mapstructure:"categories"`
	Country           string   `mapstructure:"country"`
	Language          string   `mapstructure:"language"`
	MaxAPICallsPerRun int      `mapstructure:"max_api_calls_per_run"` // default 3
	MaxSavedPerRun    int      `mapstructure:"max_saved_per_run"`     // default 5, K per category
}

// Subvert holds Subvert Worker tuning knobs.
type Subvert struct {
	MaxConcurrency int `mapstructure:"max_concurrency"` // per-invocation story fan-out, default 8
	BrainstormWords int `mapstructure:"brainstorm_words"` // WordBank words sampled for Stage 1, default 8
}

// Store holds the local/dev store's connection settings.
type Store struct {
	Path string `mapstructure:"path"` // not read by the CLI: the store opens App.DataDir/subvertnews.db
}

// Server holds Reader HTTP surface configuration.
type Server struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOpen        bool          `mapstructure:"cors_open"`
}

var globalConfig *Config

// Load reads configuration from an optional config file, a .env file if
// present, and environment variables (which always win). Repeated calls
// return the same process-wide instance.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("warning: error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".subvertnews")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	globalConfig = cfg
	return cfg, nil
}

// Get returns the global configuration, loading it with defaults if
// Load has not yet been called.
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("failed to load configuration: %v", err))
		}
		return cfg
	}
	return globalConfig
}

// Reset clears the cached global configuration. Tests use this to load a
// fresh configuration between cases.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.data_dir", ".subvertnews")
	viper.SetDefault("app.editorial_timezone", "America/New_York")

	viper.SetDefault("stages.brainstorm.provider", "google")
	viper.SetDefault("stages.brainstorm.model", "gemini-2.5-flash")
	viper.SetDefault("stages.generate.provider", "google")
	viper.SetDefault("stages.generate.model", "gemini-2.5-flash")
	viper.SetDefault("stages.tournament.provider", "google")
	viper.SetDefault("stages.tournament.model", "gemini-2.5-flash")
	viper.SetDefault("stages.tournament_finals.provider", "anthropic")
	viper.SetDefault("stages.tournament_finals.model", "claude-opus-4-6")
	viper.SetDefault("stages.tournament_elimination.provider", "google")
	viper.SetDefault("stages.tournament_elimination.model", "gemini-2.5-flash")
	viper.SetDefault("stages.polish.provider", "anthropic")
	viper.SetDefault("stages.polish.model", "claude-opus-4-6")

	viper.SetDefault("tournament.survivor_cohort_size", 64)
	viper.SetDefault("tournament.group_size", 15)
	viper.SetDefault("tournament.final_round_max", 20)
	viper.SetDefault("tournament.group_pool_size", 50)
	viper.SetDefault("tournament.polish_top_n", 16)
	viper.SetDefault("tournament.final_after_batch", 4)
	viper.SetDefault("tournament.final_after_hour", 21)
	viper.SetDefault("tournament.verbose", false)
	viper.SetDefault("tournament.call_timeout", 30*time.Second)
	viper.SetDefault("tournament.run_budget", 5*time.Minute)
	viper.SetDefault("tournament.lock_ttl", 10*time.Minute)

	viper.SetDefault("ingest.endpoint", "https://newsdata.io/api/1/news")
	viper.SetDefault("ingest.country", "us")
	viper.SetDefault("ingest.language", "en")
	viper.SetDefault("ingest.categories", []string{
		"business", "entertainment", "politics", "science", "sports", "technology", "world",
	})
	viper.SetDefault("ingest.max_api_calls_per_run", 3)
	viper.SetDefault("ingest.max_saved_per_run", 5)

	viper.SetDefault("subvert.max_concurrency", 8)
	viper.SetDefault("subvert.brainstorm_words", 8)

	viper.SetDefault("store.path", ".subvertnews/subvertnews.db")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.cors_open", true)
}

// bindEnvironmentVariables wires the spec's flat {STAGE}_PROVIDER /
// {STAGE}_MODEL environment variable names (and a handful of other
// top-level knobs) onto their nested viper keys, since AutomaticEnv alone
// only reaches keys by mechanical name transformation.
func bindEnvironmentVariables() {
	bindings := map[string][]string{
		"stages.brainstorm.provider":           {"BRAINSTORM_PROVIDER"},
		"stages.brainstorm.model":              {"BRAINSTORM_MODEL"},
		"stages.generate.provider":             {"GENERATE_PROVIDER"},
		"stages.generate.model":                {"GENERATE_MODEL"},
		"stages.tournament.provider":           {"TOURNAMENT_PROVIDER"},
		"stages.tournament.model":              {"TOURNAMENT_MODEL"},
		"stages.tournament_finals.provider":    {"TOURNAMENT_FINALS_PROVIDER"},
		"stages.tournament_finals.model":       {"TOURNAMENT_FINALS_MODEL"},
		"stages.tournament_elimination.provider": {"TOURNAMENT_ELIMINATION_PROVIDER"},
		"stages.tournament_elimination.model":  {"TOURNAMENT_ELIMINATION_MODEL"},
		"stages.polish.provider":               {"POLISH_PROVIDER"},
		"stages.polish.model":                  {"POLISH_MODEL"},
		"stages.anthropic_api_key":             {"ANTHROPIC_API_KEY"},
		"stages.gemini_api_key":                {"GEMINI_API_KEY"},
		"tournament.survivor_cohort_size":       {"TOURNAMENT_FINALS_CUTOFF"},
		"tournament.verbose":                   {"TOURNAMENT_VERBOSE"},
		"ingest.api_key":                       {"NEWS_DATA_API_KEY"},
		"app.editorial_timezone":               {"EDITORIAL_TIMEZONE"},
	}
	for key, envs := range bindings {
		_ = viper.BindEnv(append([]string{key}, envs...)...)
	}
}
