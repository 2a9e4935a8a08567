package main

import (
	"context"
	"os"

	"github.com/aretw0/introspection"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the database and store state",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		db, err := openDatabase(ctx, settings{})
		if err != nil {
			fatal("Failed to open database", err)
		}

		out := map[string]any{"database": db.State()}
		if intro, ok := db.Store().(introspection.Introspectable); ok {
			out["store"] = intro.State()
		}
		if err := printJSON(os.Stdout, out); err != nil {
			fatal("Failed to print state", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
}
