package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of docrender",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("docrender version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
