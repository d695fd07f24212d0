package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/spine/pkg/schema"
)

var (
	initTypes       []string
	initInteractive bool
	initForce       bool
)

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create spine.yaml and a resource schema",
		Long: `Write a spine.yaml config and a schema.yaml declaring resource types.

Types are given in compact form, one per --type flag:

  type:attribute[:kind[:target]],...

Kinds are property (default), date, to-one and to-many.

Examples:
  # Declare two types
  spine init --type "articles:title,published_at:date,author:to-one:authors" --type authors:name

  # Answer prompts instead
  spine init -i`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInit,
	}

	cmd.Flags().StringArrayVarP(&initTypes, "type", "t", nil, "Resource type in compact form (repeatable)")
	cmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for resource types")
	cmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing files")

	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	specs := initTypes
	if len(specs) == 0 && initInteractive {
		var err error
		if specs, err = promptTypes(); err != nil {
			return err
		}
	}
	if len(specs) == 0 {
		return fmt.Errorf("at least one resource type required\n\nUsage: spine init --type <type:attributes> or spine init -i")
	}

	f, err := buildSchemaFile(specs)
	if err != nil {
		return err
	}
	schemaData, err := f.Marshal()
	if err != nil {
		return err
	}

	schemaPath := filepath.Join(dir, "schema.yaml")
	configPath := filepath.Join(dir, "spine.yaml")
	if !initForce {
		for _, path := range []string{schemaPath, configPath} {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(schemaPath, schemaData, 0644); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out := cmd.OutOrStdout()
	successColor := color.New(color.FgGreen, color.Bold)
	infoColor := color.New(color.FgCyan)
	successColor.Fprintf(out, "✓ Created %s with %d resource types\n", schemaPath, len(f.Resources))
	successColor.Fprintf(out, "✓ Created %s\n", configPath)
	fmt.Fprintln(out)
	infoColor.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  spine types")
	fmt.Fprintln(out, "  spine serve")
	return nil
}

const defaultConfig = `schema: schema.yaml

server:
  host: localhost
  port: 4000

client:
  base_url: http://localhost:4000
  timeout: 30s

format:
  indent: 2

log:
  level: info
`

// buildSchemaFile parses compact type specs and validates them as a whole
func buildSchemaFile(specs []string) (*schema.File, error) {
	f := &schema.File{}
	for _, spec := range specs {
		c, err := schema.ParseClass(spec)
		if err != nil {
			return nil, err
		}
		f.Resources = append(f.Resources, c)
	}
	if _, err := f.Classes(); err != nil {
		return nil, err
	}
	return f, nil
}

// promptTypes asks for compact type specs until an empty answer
func promptTypes() ([]string, error) {
	validate := func(ans interface{}) error {
		s, _ := ans.(string)
		if s == "" {
			return nil
		}
		_, err := schema.ParseClass(s)
		return err
	}

	var specs []string
	for {
		var spec string
		prompt := &survey.Input{
			Message: "Resource type (type:attr[:kind[:target]],...; empty to finish):",
		}
		if err := survey.AskOne(prompt, &spec, survey.WithValidator(validate)); err != nil {
			return nil, err
		}
		if spec == "" {
			break
		}
		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		return nil, errors.New("no resource types entered")
	}
	return specs, nil
}
