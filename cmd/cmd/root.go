/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"subvertnews/internal/config"
	"subvertnews/internal/ingestor"
	"subvertnews/internal/llm"
	"subvertnews/internal/logger"
	"subvertnews/internal/newsapi"
	"subvertnews/internal/observability"
	"subvertnews/internal/reader"
	"subvertnews/internal/server"
	"subvertnews/internal/store"
	"subvertnews/internal/subvert"
	"subvertnews/internal/tournament"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "subvertnews",
	Short: "subvertnews runs the satirical-newspaper headline pipeline.",
	Long: `subvertnews ingests real news, generates satirical headline candidates,
ranks them in a daily tournament, and serves a front page of the best four.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .subvertnews.yaml)")
	rootCmd.AddCommand(serveCmd, ingestCmd, subvertCmd, tournamentCmd, fetchCmd)
}

// loadConfig loads configuration and initializes the process-wide logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.App.LogLevel)
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.NewStore(cfg.App.DataDir)
}

func newGateway(cfg *config.Config) *llm.Gateway {
	tracker := observability.NewUsageTracker(logger.Get())
	return llm.NewGateway(&cfg.Stages, tracker.LLMUsageHook())
}

func today(cfg *config.Config) string {
	loc, err := time.LoadLocation(cfg.App.EditorialTZ)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format("20060102")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Reader HTTP surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		r := reader.New(s, cfg.App.EditorialTZ)
		srv := server.New(r, cfg.Server)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case <-sigCh:
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one Story Ingestor pass against the configured news source",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		client := newsapi.New(cfg.Ingest.Endpoint, cfg.Ingest.APIKey, cfg.Ingest.Country, cfg.Ingest.Language, 1)
		ing := ingestor.New(client, s, cfg.Ingest)

		summary, err := ing.FetchRun(cmd.Context(), time.Now())
		if err != nil {
			return fmt.Errorf("ingest run: %w", err)
		}
		logger.Info("ingest run complete", "saved", summary.Saved, "processed", summary.Processed)
		return nil
	},
}

var subvertCmd = &cobra.Command{
	Use:   "subvert",
	Short: "Generate satirical headline candidates for today's un-subverted stories",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		day := today(cfg)
		stories, err := s.GetStoriesByDay(cmd.Context(), day)
		if err != nil {
			return fmt.Errorf("get stories for day %s: %w", day, err)
		}

		worker := subvert.New(s, newGateway(cfg), cfg.Subvert)
		summary, err := worker.ProcessStories(cmd.Context(), stories)
		if err != nil {
			return fmt.Errorf("subvert run: %w", err)
		}
		logger.Info("subvert run complete",
			"processed", summary.Processed, "saved", summary.Saved,
			"skipped", summary.Skipped, "failed", summary.Failed)
		return nil
	},
}

var tournamentCmd = &cobra.Command{
	Use:   "tournament",
	Short: "Run the Tournament Engine for today's day key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		engine := tournament.New(s, newGateway(cfg), cfg.Tournament)
		summary, err := engine.RunDaily(cmd.Context(), today(cfg))
		if err != nil {
			return fmt.Errorf("tournament run: %w", err)
		}
		logger.Info("tournament run complete",
			"day", summary.Day, "no_op", summary.NoOp, "batch", summary.Batch,
			"pool_size", summary.PoolSize, "survivors", summary.Survivors,
			"polished", summary.Polished, "cross_day", summary.CrossDay)
		return nil
	},
}

var (
	fetchMax        int
	fetchNoPriority bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <query>",
	Short: "Manually fetch stories for a topic, tagged as a manual fetch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		client := newsapi.New(cfg.Ingest.Endpoint, cfg.Ingest.APIKey, cfg.Ingest.Country, cfg.Ingest.Language, 1)
		ing := ingestor.New(client, s, cfg.Ingest)

		summary, err := ing.FetchTopic(cmd.Context(), args[0], fetchMax, fetchNoPriority)
		if err != nil {
			return fmt.Errorf("fetch topic: %w", err)
		}
		logger.Info("topic fetch complete", "query", args[0], "saved", summary.Saved, "processed", summary.Processed)
		return nil
	},
}

func init() {
	fetchCmd.Flags().IntVar(&fetchMax, "max", 3, "maximum stories to save")
	fetchCmd.Flags().BoolVar(&fetchNoPriority, "no-priority", false, "skip the priority-domain filter")
}
