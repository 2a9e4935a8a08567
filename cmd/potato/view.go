package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andymorris/couch-potato/pkg/core"
)

var (
	viewKey         string
	viewKeys        string
	viewStartKey    string
	viewEndKey      string
	viewLimit       int
	viewSkip        int
	viewDescending  bool
	viewIncludeDocs bool
	viewReduce      bool
	viewPattern     string
)

var viewCmd = &cobra.Command{
	Use:   "view [design/name]",
	Short: "Query a view",
	Long: `Query a design document view, or _all_docs when no view is given.
Keys are JSON values; anything that is not valid JSON is taken as a string.
--pattern filters _all_docs ids with a glob such as "people/**".`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		spec, err := buildViewSpec(args)
		if err != nil {
			fatal("Invalid query", err)
		}

		ctx := context.Background()
		db, err := openDatabase(ctx, settings{})
		if err != nil {
			fatal("Failed to open database", err)
		}

		out, err := db.View(ctx, spec)
		if err != nil {
			fatal("View failed", err)
		}
		if out.Reduced {
			err = printJSON(os.Stdout, out.Value)
		} else {
			err = printJSON(os.Stdout, rowsOutput(out.Rows))
		}
		if err != nil {
			fatal("Failed to print result", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(viewCmd)
	viewCmd.Flags().StringVar(&viewKey, "key", "", "Only rows with this key")
	viewCmd.Flags().StringVar(&viewKeys, "keys", "", "Only rows with these keys (JSON array)")
	viewCmd.Flags().StringVar(&viewStartKey, "start-key", "", "First key of the range")
	viewCmd.Flags().StringVar(&viewEndKey, "end-key", "", "Last key of the range")
	viewCmd.Flags().IntVar(&viewLimit, "limit", 0, "Maximum number of rows")
	viewCmd.Flags().IntVar(&viewSkip, "skip", 0, "Rows to skip")
	viewCmd.Flags().BoolVar(&viewDescending, "descending", false, "Reverse key order")
	viewCmd.Flags().BoolVar(&viewIncludeDocs, "include-docs", false, "Include documents in rows")
	viewCmd.Flags().BoolVar(&viewReduce, "reduce", false, "Return the reduced value")
	viewCmd.Flags().StringVar(&viewPattern, "pattern", "", "Glob over _all_docs ids")
}

func buildViewSpec(args []string) (core.ViewSpec, error) {
	spec := core.ViewSpec{
		Name:        core.AllDocs,
		Limit:       viewLimit,
		Skip:        viewSkip,
		Descending:  viewDescending,
		IncludeDocs: viewIncludeDocs,
		Reduce:      viewReduce,
		Pattern:     viewPattern,
	}
	if len(args) == 1 && args[0] != core.AllDocs {
		design, name, ok := strings.Cut(args[0], "/")
		if !ok || design == "" || name == "" {
			return spec, fmt.Errorf("view must be design/name, got %q", args[0])
		}
		spec.Design, spec.Name = design, name
	}
	if viewKey != "" {
		spec.Key = jsonValue(viewKey)
	}
	if viewStartKey != "" {
		spec.StartKey = jsonValue(viewStartKey)
	}
	if viewEndKey != "" {
		spec.EndKey = jsonValue(viewEndKey)
	}
	if viewKeys != "" {
		if err := json.Unmarshal([]byte(viewKeys), &spec.Keys); err != nil {
			return spec, fmt.Errorf("--keys must be a JSON array: %w", err)
		}
	}
	return spec, nil
}

func jsonValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

type rowOutput struct {
	ID    string   `json:"id,omitempty"`
	Key   any      `json:"key"`
	Value any      `json:"value"`
	Doc   core.Raw `json:"doc,omitempty"`
}

func rowsOutput(rows []core.Row) []rowOutput {
	out := make([]rowOutput, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowOutput{ID: r.ID, Key: r.Key, Value: r.Value, Doc: r.Doc})
	}
	return out
}
