package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [pattern]",
	Short: "Stream document changes",
	Long:  `Print a line per created, modified or deleted document whose id matches pattern (default "**") until interrupted.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pattern := "**"
		if len(args) == 1 {
			pattern = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openDatabase(ctx, settings{})
		if err != nil {
			fatal("Failed to open database", err)
		}
		events, err := db.Watch(ctx, pattern)
		if err != nil {
			fatal("Failed to watch", err)
		}
		for e := range events {
			fmt.Printf("%d %s\n", e.Timestamp, e)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
