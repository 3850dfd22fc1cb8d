package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docrender/internal/aicontext"
)

var contextCmd = &cobra.Command{
	Use:   "context [file]",
	Short: "Extract AI-context records from a document",
	Long: `Scans a Markdown document for ai-context directive blocks and prints
the extracted records as JSON. Hidden blocks are included; that is the
point of the extractor.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runContext(args[0]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(contextCmd)
}

func runContext(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	recs := aicontext.Extract(data)
	if recs == nil {
		recs = []aicontext.Record{}
	}
	out, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
