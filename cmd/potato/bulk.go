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

var bulkNoVerify bool

var bulkCmd = &cobra.Command{
	Use:   "bulk [file]",
	Short: "Save many documents in one request",
	Long: `Read a JSON array of documents from file (or stdin) and save them in one round-trip.
Objects carrying "_id" and "_rev" update that revision. One invalid document aborts the whole batch.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				fatal("Failed to open input", err)
			}
			defer f.Close()
			in = f
		}
		docs, err := readDocuments(in)
		if err != nil {
			fatal("Invalid input", err)
		}

		ctx := context.Background()
		db, err := openDatabase(ctx, settings{})
		if err != nil {
			fatal("Failed to open database", err)
		}

		results, ok, err := db.BulkSave(ctx, docs, core.WithValidation(!bulkNoVerify))
		if err != nil {
			fatal("Bulk save failed", err)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "Batch rejected by validation:")
			for i, doc := range docs {
				for _, msg := range doc.Errors().FullMessages() {
					fmt.Fprintf(os.Stderr, "  [%d] %s\n", i, msg)
				}
			}
			os.Exit(1)
		}
		if err := printJSON(os.Stdout, results); err != nil {
			fatal("Failed to print results", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(bulkCmd)
	bulkCmd.Flags().BoolVar(&bulkNoVerify, "no-verify", false, "Skip validation")
}

// readDocuments decodes a JSON array into Generic documents.
func readDocuments(r io.Reader) ([]core.Document, error) {
	var raws []core.Raw
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, fmt.Errorf("expected a JSON array of objects: %w", err)
	}
	docs := make([]core.Document, 0, len(raws))
	for _, raw := range raws {
		g := core.NewGeneric()
		if err := g.Decode(raw); err != nil {
			return nil, err
		}
		// Without a revision the id is a requested id for a new document.
		if id, rev := g.Identity(); rev == "" && id != "" {
			g.SetIdentity("", "")
			g.Fields[core.IDKey] = id
		}
		g.Touch()
		docs = append(docs, g)
	}
	return docs, nil
}
