package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/spine/internal/cli/ui"
	"github.com/conduit-lang/spine/pkg/client"
	"github.com/conduit-lang/spine/pkg/mapper"
)

var (
	pushSchema  string
	pushBaseURL string
	pushPath    string
	pushToken   string
	pushTimeout time.Duration
)

// NewPushCommand creates the push command
func NewPushCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push [file]",
		Short: "Send the resources of a document to an API",
		Long: `Map a compound document and save its primary resources to a JSON:API server.

Resources without an id are created with one POST to the collection and take the
ids the server assigns. Resources with an id are updated with a PUT each. The
collection defaults to /{type} of the primary resources, which must share a type.

Examples:
  # Create the articles of a file
  spine push new-articles.json

  # Update through another server with a token from "spine token"
  spine push --base-url http://api.example.com --token "$TOKEN" articles.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPush,
	}

	cmd.Flags().StringVarP(&pushSchema, "schema", "s", "", "Path to the resource schema (overrides config)")
	cmd.Flags().StringVar(&pushBaseURL, "base-url", "", "API base URL (default: client.base_url)")
	cmd.Flags().StringVar(&pushPath, "path", "", "Collection path (default: /{type})")
	cmd.Flags().StringVar(&pushToken, "token", "", "Bearer token for writes (default: client.token)")
	cmd.Flags().DurationVar(&pushTimeout, "timeout", 0, "Request timeout (default: client.timeout)")

	return cmd
}

func runPush(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if pushBaseURL != "" {
		cfg.Client.BaseURL = pushBaseURL
	}
	if pushToken != "" {
		cfg.Client.Token = pushToken
	}
	if pushTimeout > 0 {
		cfg.Client.Timeout = pushTimeout
	}

	m, err := buildMapper(cfg, pushSchema)
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
	path, err := collectionPath(res, pushPath)
	if err != nil {
		return err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	c := client.New(cfg.Client.BaseURL, m,
		client.WithTimeout(cfg.Client.Timeout),
		client.WithLogger(logger),
		client.WithToken(cfg.Client.Token),
	)

	s, err := c.Save(cmd.Context(), path, nil, res.Primary...)
	if err != nil {
		return reportClientError(cmd, m, err)
	}

	renderResultTable(cmd.OutOrStdout(), &mapper.Result{Store: s, Primary: res.Primary})
	ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Pushed %d resources to %s", len(res.Primary), path), color.NoColor)
	return nil
}

// collectionPath returns explicit, or /{type} of the primary resources of res
func collectionPath(res *mapper.Result, explicit string) (string, error) {
	if len(res.Primary) == 0 {
		return "", fmt.Errorf("document has no primary resources")
	}
	typ := res.Primary[0].ResourceType()
	for _, r := range res.Primary[1:] {
		if r.ResourceType() != typ {
			return "", fmt.Errorf("primary resources mix %s and %s; push one type at a time", typ, r.ResourceType())
		}
	}
	if explicit != "" {
		return explicit, nil
	}
	return "/" + typ, nil
}
