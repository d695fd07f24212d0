package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/spine/internal/cli/config"
	"github.com/conduit-lang/spine/internal/cli/ui"
	"github.com/conduit-lang/spine/pkg/client"
	"github.com/conduit-lang/spine/pkg/formatter"
	"github.com/conduit-lang/spine/pkg/mapper"
	"github.com/conduit-lang/spine/pkg/registry"
	"github.com/conduit-lang/spine/pkg/resource"
	"github.com/conduit-lang/spine/pkg/schema"
)

// errNoSchema is returned when neither --schema nor the config names a schema file
var errNoSchema = errors.New("no schema file given: pass --schema or set schema in spine.yaml")

// reportedError wraps an error whose message was already written to stderr
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

// loadConfig reads the config selected by the global --config flag
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), color.NoColor))
		return nil, &reportedError{err: err}
	}
	return cfg, nil
}

// loadSchema reads the schema at path, falling back to the configured one
func loadSchema(cfg *config.Config, path string) (*schema.File, error) {
	if path == "" {
		path = cfg.Schema
	}
	if path == "" {
		return nil, errNoSchema
	}
	return schema.Load(path)
}

// buildMapper creates a mapper over the classes declared in the schema file
func buildMapper(cfg *config.Config, schemaPath string) (*mapper.Mapper, error) {
	f, err := loadSchema(cfg, schemaPath)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	if err := f.Register(reg); err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	var opts []formatter.Option
	if loc != nil {
		opts = append(opts, formatter.WithLocation(loc))
	}

	return mapper.New(reg, mapper.WithFormatterOptions(opts...)), nil
}

// readInput reads the file named by args, or stdin when there is none or it is "-"
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return data, nil
}

// reportMappingError prints a mapping failure the way the CLI renders domain errors
func reportMappingError(cmd *cobra.Command, m *mapper.Mapper, err error) error {
	w := cmd.ErrOrStderr()
	switch {
	case mapper.IsUnknownType(err):
		name := unknownTypeName(err)
		fmt.Fprint(w, ui.UnknownTypeError(name, ui.FindSimilar(name, m.Registry().Types()), color.NoColor))
	case mapper.IsMalformed(err):
		fmt.Fprint(w, ui.DocumentError(err.Error(), color.NoColor))
	case mapper.IsUnsaved(err):
		fmt.Fprint(w, ui.UnsavedError(err.Error(), color.NoColor))
	default:
		return err
	}
	return &reportedError{err: err}
}

// reportClientError prints a failed API round trip. HTTP errors show the server's
// message and the request; anything else is a mapping failure.
func reportClientError(cmd *cobra.Command, m *mapper.Mapper, err error) error {
	var httpErr *client.HTTPError
	if !errors.As(err, &httpErr) {
		return reportMappingError(cmd, m, err)
	}
	ui.WriteError(cmd.ErrOrStderr(), ui.ErrorOptions{
		Context: fmt.Sprintf("HTTP %d", httpErr.StatusCode),
		Problem: httpErr.Message(),
		HelpCommands: []string{
			fmt.Sprintf("Request: %s %s", httpErr.Method, httpErr.URL),
		},
		NoColor: color.NoColor,
	})
	return &reportedError{err: err}
}

// unknownTypeName extracts the offending type from an unknown type error
func unknownTypeName(err error) string {
	msg := err.Error()
	marker := mapper.ErrUnknownResourceType.Error() + ": "
	if i := strings.LastIndex(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return ""
}

// writeJSON renders v with the configured indentation
func writeJSON(w io.Writer, v interface{}, indent int) error {
	var (
		data []byte
		err  error
	)
	if indent > 0 {
		data, err = json.MarshalIndent(v, "", strings.Repeat(" ", indent))
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// splitResult separates the store's resources into primary and linked ones, keeping
// the primary document order
func splitResult(res *mapper.Result) (primary, linked []resource.Resource) {
	isPrimary := make(map[resource.Resource]bool, len(res.Primary))
	for _, r := range res.Primary {
		isPrimary[r] = true
	}
	for _, r := range res.Store.All() {
		if !isPrimary[r] {
			linked = append(linked, r)
		}
	}
	return res.Primary, linked
}

// renderResultTable prints one row per mapped resource
func renderResultTable(w io.Writer, res *mapper.Result) {
	primary, linked := splitResult(res)

	table := ui.NewTable(w, []string{"TYPE", "ID", "ROLE", "LINKS"}, &ui.TableOptions{NoColor: color.NoColor})
	add := func(r resource.Resource, role string) {
		id := "-"
		if base := resource.BaseOf(r); base.HasID() {
			id = base.ID()
		}
		table.AddRow(r.ResourceType(), id, role, describeLinks(r))
	}
	for _, r := range primary {
		add(r, "primary")
	}
	for _, r := range linked {
		add(r, "linked")
	}
	table.Render()
}

// describeLinks summarizes the relationships of r as name=type/id pairs. Targets that
// are placeholders are marked with a trailing "?".
func describeLinks(r resource.Resource) string {
	base := resource.BaseOf(r)

	var parts []string
	target := func(t resource.Resource) string {
		s := resource.Describe(t)
		if t != nil && resource.BaseOf(t).IsPlaceholder() {
			s += "?"
		}
		return s
	}

	for _, name := range base.SlotNames() {
		slot := base.Slot(name)
		switch slot.State() {
		case resource.SlotOne:
			if slot.One() == nil {
				parts = append(parts, name+"=null")
				continue
			}
			parts = append(parts, name+"="+target(slot.One()))
		case resource.SlotMany:
			ids := make([]string, 0, len(slot.Many()))
			for _, t := range slot.Many() {
				ids = append(ids, target(t))
			}
			parts = append(parts, name+"=["+strings.Join(ids, ",")+"]")
		case resource.SlotPending:
			d, _ := slot.Pending()
			parts = append(parts, fmt.Sprintf("%s=pending(%s)", name, strings.Join(d.IDs(), ",")))
		}
	}

	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
