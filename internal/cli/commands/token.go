package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/spine/internal/web/auth"
)

var errNoSecret = errors.New("no signing secret: set server.auth.secret in spine.yaml or SPINE_SERVER_AUTH_SECRET")

var tokenTTL time.Duration

// NewTokenCommand creates the token command
func NewTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Issue a bearer token for writes to the fixture API",
		Long: `Sign a token with server.auth.secret. The fixture API accepts it on POST, PUT and
DELETE requests when started with the same secret.

Examples:
  # Token for the default subject
  spine token

  # Short-lived token for a named writer
  spine token seeder --ttl 15m`,
		Args: cobra.MaximumNArgs(1),
		RunE: runToken,
	}

	cmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default: server.auth.token_ttl)")

	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Server.Auth.Secret == "" {
		return errNoSecret
	}

	subject := "spine"
	if len(args) > 0 {
		subject = args[0]
	}
	ttl := cfg.Server.Auth.TokenTTL
	if tokenTTL > 0 {
		ttl = tokenTTL
	}

	token, err := auth.NewIssuer(cfg.Server.Auth.Secret, ttl).Issue(subject)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
