// Package main provides the strategy designer service and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"strategy-builder-go/internal/config"
	"strategy-builder-go/internal/logger"
	"strategy-builder-go/internal/session"
	"strategy-builder-go/internal/versions"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "designer",
	Short: "Strategy designer canvas service",
	Long: `designer keeps strategy graph working copies, autosaves them to the
versions API and serves the canvas to the designer UI.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./configs", "Directory containing config.yml")
	rootCmd.AddCommand(serveCmd, versionsCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is what every command needs before doing real work.
type env struct {
	cfg config.Config
	log *zap.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return nil, fmt.Errorf("could not initialize logger: %w", err)
	}
	return &env{cfg: cfg, log: log}, nil
}

func (e *env) tokens() *session.TokenSource {
	return session.New(&e.cfg.Session, e.log)
}

func (e *env) versionsClient(tokens session.Provider) *versions.Client {
	return versions.NewClient(&e.cfg.API, tokens, e.log)
}
