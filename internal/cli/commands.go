package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"applicant-portal/internal/application/gate"
	"applicant-portal/internal/draft"
	"applicant-portal/internal/models"
	"applicant-portal/pkg/portalclient"
)

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) client() *portalclient.Client {
	var opts []portalclient.Option
	if o.Owner != "" {
		opts = append(opts, portalclient.WithHeader(o.OwnerHeader, o.Owner))
	}
	return portalclient.New(o.Client.BaseURL, o.Client.Token, o.timeout(), opts...)
}

// engine loads the draft with the server's own catalog so the local gate
// matches the one the server enforces.
func (o *RootOptions) engine(ctx context.Context, f *OutputFormatter) (*draft.Engine, error) {
	client := o.client()
	cat, err := client.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	g, err := gate.New(cat)
	if err != nil {
		return nil, err
	}
	e := draft.NewEngine(client, g, draft.Options{})
	s, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}
	f.VerboseLog("loaded application: status=%s fields=%d", s.Status, len(s.Fields))
	return e, nil
}

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the application, creating an empty one on first use",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			app, err := rootOpts.client().GetApplication(cmd.Context())
			if err != nil {
				return f.Fail(err)
			}
			return f.Success(app)
		},
	}
}

type editOptions struct {
	set     []string
	submit  bool
	consent bool
}

func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &editOptions{}

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Change fields and save or submit the draft",
		Long: `Change fields and save them as a draft, or submit the application.

Values are strings except "true", "false" and "null". A null keeps the
stored value. Without --submit the edits are saved with an in_progress
status.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.set, "set", "s", nil, "field assignment name=value (repeatable)")
	cmd.Flags().BoolVar(&opts.submit, "submit", false, "submit after applying the edits")
	cmd.Flags().BoolVar(&opts.consent, "consent", false, "tick the consent checkbox")

	return cmd
}

func runEdit(rootOpts *RootOptions, opts *editOptions, cmd *cobra.Command) error {
	f := rootOpts.formatter(cmd)
	ctx := cmd.Context()

	edits, err := parseAssignments(opts.set)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "invalid --set", Err: err}
	}
	if len(edits) == 0 && !opts.submit && !opts.consent {
		return &ExitError{Code: ExitCommandError, Message: "nothing to do: pass --set, --consent or --submit"}
	}

	e, err := rootOpts.engine(ctx, f)
	if err != nil {
		return f.Fail(err)
	}

	if opts.consent {
		edits = append(edits, assignment{name: e.ConsentField(), value: true})
	}
	for _, a := range edits {
		if err := e.Edit(a.name, a.value); err != nil {
			return f.Fail(err)
		}
		f.VerboseLog("set %s", a.name)
	}

	var app *models.Application
	if opts.submit {
		app, err = e.Submit(ctx)
	} else {
		err = e.Flush(ctx)
		app = e.Snapshot().Record
	}
	if err != nil {
		return f.Fail(err)
	}
	return f.Success(app)
}

func NewConfirmCommand(rootOpts *RootOptions) *cobra.Command {
	return transitionCommand(rootOpts, "confirm", "Confirm attendance after acceptance", (*draft.Engine).Confirm)
}

func NewDeclineCommand(rootOpts *RootOptions) *cobra.Command {
	return transitionCommand(rootOpts, "decline", "Decline attendance after acceptance", (*draft.Engine).Decline)
}

func transitionCommand(rootOpts *RootOptions, use, short string, call func(*draft.Engine, context.Context) (*models.Application, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			e, err := rootOpts.engine(cmd.Context(), f)
			if err != nil {
				return f.Fail(err)
			}
			app, err := call(e, cmd.Context())
			if err != nil {
				return f.Fail(err)
			}
			return f.Success(app)
		},
	}
}

func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "catalog",
		Short:         "List the form fields the server expects",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			cat, err := rootOpts.client().Catalog(cmd.Context())
			if err != nil {
				return f.Fail(err)
			}
			if f.Format == "json" {
				return f.Success(cat)
			}
			w := cmd.OutOrStdout()
			for _, d := range cat.Descriptors {
				marker := " "
				if d.Required {
					marker = "*"
				}
				fmt.Fprintf(w, "%s %-22s %-9s %s\n", marker, d.Name, d.Kind, d.Label)
			}
			return nil
		},
	}
}

type assignment struct {
	name  string
	value any
}

// parseAssignments reads name=value pairs in flag order.
func parseAssignments(raw []string) ([]assignment, error) {
	out := make([]assignment, 0, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", kv)
		}
		out = append(out, assignment{name: name, value: parseValue(value)})
	}
	return out, nil
}

func parseValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	return s
}
