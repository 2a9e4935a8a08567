package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a document",
	Long:  `Delete the current revision of a document. A concurrent update is retried once.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		db, err := openDatabase(ctx, settings{})
		if err != nil {
			fatal("Failed to open database", err)
		}

		doc, err := db.LoadOrFail(ctx, args[0])
		if err != nil {
			fatal("Failed to load document", err)
		}
		ok, err := db.Destroy(ctx, doc)
		if err != nil {
			fatal("Failed to delete document", err)
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "Delete of '%s' aborted by a hook.\n", args[0])
			os.Exit(1)
		}
		fmt.Printf("Document '%s' deleted.\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
