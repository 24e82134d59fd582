package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sortwatch/sortwatch/internal/ai"
	"github.com/sortwatch/sortwatch/internal/config"
	"github.com/sortwatch/sortwatch/internal/logging"
	"github.com/sortwatch/sortwatch/internal/store"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	cfgPath    string
	dbPath     string
	jsonOutput bool
	quietFlag  bool

	cfg     *config.Config
	db      *store.DB
	metrics = &ai.SessionMetrics{}
)

var rootCmd = &cobra.Command{
	Use:   "sw",
	Short: "sw - AI-assisted file and mailbox triage",
	Long:  "Sortwatch: watch folders and mailboxes, classify items against plain-language rules, act on the matches.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "help", "version":
			return nil
		}

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := logging.Init(cfg.LogLevel); err != nil {
			return err
		}

		if cmd.Name() == "init" {
			return nil
		}

		path := dbPath
		if path == "" {
			path = cfg.DBPath()
		}
		db, err = store.Open(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
		logging.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sw version %s\n", Version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the sortwatch data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(cfg.DBPath())
		if err != nil {
			return err
		}
		s.Close()

		for _, dir := range []string{cfg.TrashDir(), filepath.Join(cfg.DataDir, "accounts")} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}

		if !quietFlag {
			fmt.Printf("Initialized sortwatch at %s\n", cfg.DataDir)
		}
		return nil
	},
}

// newAIClient builds the shared classification client. Fails with a
// user-actionable message when no API key is configured.
func newAIClient(ctx context.Context) (*ai.GeminiClient, error) {
	if cfg.AI.APIKey == "" {
		return nil, fmt.Errorf("no API key configured: set GEMINI_API_KEY or ai.api_key in config")
	}
	return ai.NewGeminiClient(ctx, cfg.AI.APIKey, metrics)
}

// credentialsPath returns the OAuth credentials file for an account.
func credentialsPath(account string) string {
	if account == "" {
		account = "default"
	}
	return filepath.Join(cfg.DataDir, "accounts", account, "credentials.json")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default: <data dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: <data dir>/sortwatch.db)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
