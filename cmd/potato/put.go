package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andymorris/couch-potato/pkg/core"
)

var (
	putData     string
	putRetry    bool
	putNoVerify bool
	putInit     bool
)

var putCmd = &cobra.Command{
	Use:   "put [id]",
	Short: "Create or update a document",
	Long: `Write a JSON object as the document with the given id (or a new id when omitted).
Fields are read from --data or stdin and merged into the current revision.
With --retry, conflicting updates reload the document and merge again.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fields, err := readFields(putData, cmd.InOrStdin())
		if err != nil {
			fatal("Invalid document", err)
		}

		ctx := context.Background()
		db, err := openDatabase(ctx, settings{AutoInit: putInit})
		if err != nil {
			fatal("Failed to open database", err)
		}

		doc := core.NewGeneric()
		if len(args) == 1 {
			loaded, found, err := db.Load(ctx, args[0])
			if err != nil {
				fatal("Failed to load document", err)
			}
			switch g, ok := loaded.(*core.Generic); {
			case found && ok:
				doc = g
			case found:
				fatal("Failed to load document", fmt.Errorf("%s is a registered type", args[0]))
			default:
				doc.Set(core.IDKey, args[0])
			}
		}

		ok, err := saveFields(ctx, db, doc, fields, putRetry, !putNoVerify)
		if err != nil {
			fatal("Failed to save document", err)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "Document not saved:")
			for _, msg := range doc.Errors().FullMessages() {
				fmt.Fprintf(os.Stderr, "  %s\n", msg)
			}
			os.Exit(1)
		}

		id, rev := doc.Identity()
		fmt.Printf("%s %s\n", id, rev)
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().StringVarP(&putData, "data", "d", "", "Document fields as a JSON object (default: stdin)")
	putCmd.Flags().BoolVar(&putRetry, "retry", false, "Retry conflicting updates against the latest revision")
	putCmd.Flags().BoolVar(&putNoVerify, "no-verify", false, "Skip validation")
	putCmd.Flags().BoolVar(&putInit, "init", false, "Create the directory or database when missing")
}

// readFields decodes a JSON object from data, or from in when data is empty.
// Identity fields are not writable.
// saveFields merges fields into doc and saves it. With retry, an existing
// document is reloaded and merged again on conflict.
func saveFields(ctx context.Context, db *core.Database, doc *core.Generic, fields map[string]any, retry, verify bool) (bool, error) {
	apply := func(d core.Document) error {
		g := d.(*core.Generic)
		for k, v := range fields {
			g.Set(k, v)
		}
		return nil
	}
	if retry && !core.IsNew(doc) {
		return db.SaveWithRetry(ctx, doc, apply, core.WithValidation(verify))
	}
	_ = apply(doc)
	return db.Save(ctx, doc, core.WithValidation(verify))
}

func readFields(data string, in io.Reader) (map[string]any, error) {
	var r io.Reader = strings.NewReader(data)
	if data == "" {
		r = in
	}
	var fields map[string]any
	if err := json.NewDecoder(r).Decode(&fields); err != nil {
		return nil, fmt.Errorf("expected a JSON object: %w", err)
	}
	delete(fields, core.IDKey)
	delete(fields, core.RevKey)
	return fields, nil
}
