package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"applicant-portal/internal/common/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Client      config.ClientConfig
	Owner       string
	OwnerHeader string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command. Connection flags fall back to
// PORTAL_BASE_URL, PORTAL_TOKEN, PORTAL_OWNER and PORTAL_TIMEOUT.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	v := viper.New()
	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "portal-cli",
		Short: "Applicant portal client",
		Long:  "Edit, submit and confirm a hackathon application against a running portal server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats)}
			}
			opts.Client.BaseURL = v.GetString("base-url")
			opts.Client.Token = v.GetString("token")
			opts.Client.Timeout = v.GetInt("timeout")
			opts.Owner = v.GetString("owner")
			if opts.Client.BaseURL == "" {
				return &ExitError{Code: ExitCommandError, Message: "--base-url is required"}
			}
			if opts.Client.Token == "" && opts.Owner == "" {
				return &ExitError{Code: ExitCommandError, Message: "one of --token or --owner is required"}
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.String("base-url", "http://localhost:8080", "portal server URL")
	flags.String("token", "", "bearer token from the identity provider")
	flags.String("owner", "", "owner id sent in the owner header (header auth mode only)")
	flags.Int("timeout", 15000, "request timeout in milliseconds")
	flags.StringVar(&opts.OwnerHeader, "owner-header", "X-Portal-Owner", "header carrying --owner")
	for _, name := range []string{"base-url", "token", "owner", "timeout"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewConfirmCommand(opts))
	cmd.AddCommand(NewDeclineCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))

	return cmd
}

func (o *RootOptions) timeout() time.Duration {
	if o.Client.Timeout <= 0 {
		return 15 * time.Second
	}
	return config.GetDuration(o.Client.Timeout)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
