package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	couchpotato "github.com/andymorris/couch-potato"
	"github.com/andymorris/couch-potato/pkg/core"
)

func main() {
	count := flag.Int("count", 1000, "Number of documents to generate")
	workers := flag.Int("workers", 8, "Concurrent writers on the shared counter")
	increments := flag.Int("increments", 25, "Increments per writer")
	adapter := flag.String("adapter", "fs", "Adapter to benchmark: fs or memory")
	keep := flag.Bool("keep", false, "Keep the benchmark directory after running")
	flag.Parse()

	benchDir, err := os.MkdirTemp("", "couchpotato_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()
	db, err := couchpotato.New(ctx, benchDir,
		couchpotato.WithAdapter(*adapter),
		couchpotato.WithLogger(logger),
		couchpotato.WithAutoInit(true),
	)
	if err != nil {
		panic(err)
	}

	// 1. Bulk load
	fmt.Printf("Writing %d documents with BulkSave...\n", *count)
	docs := make([]core.Document, 0, *count)
	for i := 0; i < *count; i++ {
		g := core.NewGeneric()
		g.Set(core.IDKey, fmt.Sprintf("bench/doc_%05d", i))
		g.Set("n", i)
		docs = append(docs, g)
	}
	startBulk := time.Now()
	results, ok, err := db.BulkSave(ctx, docs)
	if err != nil || !ok {
		panic(fmt.Sprintf("bulk save failed: ok=%v err=%v", ok, err))
	}
	bulkDuration := time.Since(startBulk)

	// 2. Contention on one document
	counter := core.NewGeneric()
	counter.Set(core.IDKey, "bench/counter")
	counter.Set("value", 0)
	if err := db.SaveOrFail(ctx, counter); err != nil {
		panic(err)
	}

	var (
		wg        sync.WaitGroup
		attempts  atomic.Int64
		exhausted atomic.Int64
	)
	fmt.Printf("Running %d writers x %d increments on one document...\n", *workers, *increments)
	startRetry := time.Now()
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < *increments; i++ {
				doc, err := db.LoadOrFail(ctx, "bench/counter")
				if err != nil {
					panic(err)
				}
				_, err = db.SaveWithRetry(ctx, doc, func(d core.Document) error {
					attempts.Add(1)
					g := d.(*core.Generic)
					g.Set("value", toInt(g.Get("value"))+1)
					return nil
				})
				var ce *core.ConflictError
				if errors.As(err, &ce) {
					exhausted.Add(1)
				} else if err != nil {
					panic(err)
				}
			}
		}()
	}
	wg.Wait()
	retryDuration := time.Since(startRetry)

	final, err := db.LoadOrFail(ctx, "bench/counter")
	if err != nil {
		panic(err)
	}

	// 3. Index scan, fs only
	var scanDuration time.Duration
	if *adapter == "fs" {
		// Touch a file behind the library's back so the scan has work to do.
		_ = os.WriteFile(filepath.Join(benchDir, "bench", "external.json"), []byte(`{"_id":"bench/external","_rev":"1-x"}`), 0644)
		startScan := time.Now()
		if _, err := couchpotato.Reconcile(ctx, benchDir); err != nil {
			panic(err)
		}
		scanDuration = time.Since(startScan)
	}

	total := int64(*workers * *increments)
	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%s, %d documents):\n", *adapter, *count)
	fmt.Printf("  BulkSave:   %v (%d results)\n", bulkDuration, len(results))
	fmt.Printf("  Retry:      %v (%d/%d increments, %d attempts, %d exhausted)\n",
		retryDuration, total-exhausted.Load(), total, attempts.Load(), exhausted.Load())
	fmt.Printf("  Counter:    %v\n", final.(*core.Generic).Get("value"))
	if scanDuration > 0 {
		fmt.Printf("  Reconcile:  %v\n", scanDuration)
	}
	fmt.Printf("--------------------------------------------------\n")
}

// toInt reads a counter decoded from JSON or YAML.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
