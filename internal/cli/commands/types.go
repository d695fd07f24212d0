package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/spine/internal/cli/ui"
)

var typesSchema string

// NewTypesCommand creates the types command
func NewTypesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the resource classes declared in the schema",
		Long: `List every resource type of the schema with its declared attributes.

Examples:
  spine types --schema schema.yaml`,
		Args: cobra.NoArgs,
		RunE: runTypes,
	}

	cmd.Flags().StringVarP(&typesSchema, "schema", "s", "", "Path to the resource schema (overrides config)")

	return cmd
}

func runTypes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	f, err := loadSchema(cfg, typesSchema)
	if err != nil {
		return err
	}
	classes, err := f.Classes()
	if err != nil {
		return err
	}

	table := ui.NewTable(cmd.OutOrStdout(), []string{"TYPE", "ATTRIBUTE", "KIND", "TARGET"}, &ui.TableOptions{NoColor: color.NoColor})
	for _, class := range classes {
		attrs := class.Schema().Attributes()
		if len(attrs) == 0 {
			table.AddRow(class.Type(), "-", "-", "-")
			continue
		}
		for _, attr := range attrs {
			target := "-"
			if attr.Kind.IsRelationship() {
				target = attr.TargetType()
			}
			table.AddRow(class.Type(), attr.Name, attr.Kind.String(), target)
		}
	}
	table.Render()
	return nil
}
