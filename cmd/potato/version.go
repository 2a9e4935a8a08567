package main

import (
	"fmt"

	couchpotato "github.com/andymorris/couch-potato"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of potato",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("potato version %s\n", couchpotato.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
