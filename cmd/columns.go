package main

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/routemap/internal/model"
)

var columnsFormat string

var columnsCmd = &cobra.Command{
	Use:   "columns",
	Short: "Print the column contract the panel declares to the host",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeContract(cmd.OutOrStdout(), model.DefaultColumns().Contract(), columnsFormat)
	},
}

func writeContract(w io.Writer, contract model.Contract, format string) error {
	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(contract); err != nil {
			return eris.Wrap(err, "columns: encode yaml")
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(contract), "columns: encode json")
	default:
		return eris.Errorf("columns: unknown format %q", format)
	}
}

func init() {
	columnsCmd.Flags().StringVar(&columnsFormat, "format", "yaml", "output format: yaml or json")
	rootCmd.AddCommand(columnsCmd)
}
