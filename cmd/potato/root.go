package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	adapter    string
	uri        string
	configPath string
	rulesPath  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "potato",
	Short: "A document database client with validation, hooks and conflict retry",
	Long: `potato reads and writes CouchDB-style documents.
It talks to a CouchDB server, a directory of JSON/YAML files or an in-memory store,
and retries conflicting updates against the latest revision.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&adapter, "adapter", "", "Storage adapter: fs, couchdb or memory")
	rootCmd.PersistentFlags().StringVar(&uri, "uri", "", "Directory (fs) or database URL (couchdb)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: .couchpotato.jsonc in the project root)")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "YAML validation rules applied to every save")
}
