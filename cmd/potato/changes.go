package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	couchpotato "github.com/andymorris/couch-potato"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "List documents changed outside potato",
	Long: `Compare the directory with the revision index (fs adapter only) and print the
documents created, modified or deleted since the last run.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		wd, err := os.Getwd()
		if err != nil {
			fatal("Failed to get CWD", err)
		}
		s, err := loadSettings(wd, configPath, os.LookupEnv, flagSettings())
		if err != nil {
			fatal("Failed to load config", err)
		}

		events, err := couchpotato.Reconcile(ctx, s.URI,
			couchpotato.WithAdapter(s.Adapter),
			couchpotato.WithDevSafety(false),
			couchpotato.WithMustExist(true),
		)
		if err != nil {
			fatal("Failed to reconcile", err)
		}
		for _, e := range events {
			fmt.Println(e)
		}
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
}
