package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"legal-analyzer/logic/ingestion/loaders"
	"legal-analyzer/logic/ingestion/processors"
)

var extractJSON bool

// extractCmd prints the text the upload path would send to the model, which
// helps when a document analyzes poorly.
var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the text extracted from a local .pdf, .docx or .txt file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := loaders.NewFileLoader(cmd.Context())
		if err != nil {
			return err
		}
		docs, err := loader.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if extractJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(docs)
		}
		_, err = fmt.Fprintln(out, processors.Join(docs))
		return err
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "print the parsed documents with their metadata")
}
