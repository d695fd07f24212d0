package commands

import (
	"github.com/spf13/cobra"
)

var (
	encodeSchema string
	encodeIndent int
)

// NewEncodeCommand creates the encode command
func NewEncodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode [file]",
		Short: "Re-render a compound document through the mapper",
		Long: `Decode a compound document and render the resulting graph back to JSON.

Primary resources are written at the top level and every other resource of the
graph under "linked". Attributes not declared in the schema are dropped and dates
are written in the canonical ISO-8601 form.

Examples:
  # Normalize a document
  spine encode response.json

  # Compact output
  spine encode --indent 0 response.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runEncode,
	}

	cmd.Flags().StringVarP(&encodeSchema, "schema", "s", "", "Path to the resource schema (overrides config)")
	cmd.Flags().IntVar(&encodeIndent, "indent", -1, "Spaces of indentation (default: format.indent)")

	return cmd
}

func runEncode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	m, err := buildMapper(cfg, encodeSchema)
	if err != nil {
		return err
	}

	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	res, err := m.Unmarshal(data, nil)
	if err != nil {
		return reportMappingError(cmd, m, err)
	}

	primary, linked := splitResult(res)
	doc, err := m.SerializeCompound(primary, linked)
	if err != nil {
		return reportMappingError(cmd, m, err)
	}

	indent := cfg.Format.Indent
	if encodeIndent >= 0 {
		indent = encodeIndent
	}
	return writeJSON(cmd.OutOrStdout(), doc, indent)
}
