package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/andymorris/couch-potato/pkg/core"
)

var getCmd = &cobra.Command{
	Use:   "get [id...]",
	Short: "Print documents as JSON",
	Long:  `Load one or more documents by id. Several ids are fetched in one round-trip; any missing id is an error.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		db, err := openDatabase(ctx, settings{})
		if err != nil {
			fatal("Failed to open database", err)
		}

		if len(args) == 1 {
			doc, err := db.LoadOrFail(ctx, args[0])
			if err != nil {
				fatal("Failed to load document", err)
			}
			if err := printDocs(os.Stdout, doc); err != nil {
				fatal("Failed to encode document", err)
			}
			return
		}

		docs, err := db.LoadManyOrFail(ctx, args)
		if err != nil {
			fatal("Failed to load documents", err)
		}
		if err := printDocs(os.Stdout, docs...); err != nil {
			fatal("Failed to encode documents", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}

// printDocs writes the stored form of docs, one JSON object per document.
func printDocs(w io.Writer, docs ...core.Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, doc := range docs {
		raw, err := doc.Encode()
		if err != nil {
			return err
		}
		if err := enc.Encode(raw); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
