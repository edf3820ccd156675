// Package apicli is the runtime CLI driven by a command tree artifact. Every
// resource becomes a command and every operation a subcommand whose flags are
// the operation's parameters.
package apicli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mark3labs/cmdtree/internal/client"
	"github.com/mark3labs/cmdtree/internal/cmdtree"
	"github.com/mark3labs/cmdtree/internal/logging"
)

// Global flag names. Parameter flags never reuse them.
const (
	flagPretty   = "pretty"
	flagRaw      = "raw"
	flagHeader   = "header"
	flagVerbose  = "verbose"
	flagBody     = "body"
	flagBodyFile = "body-file"
)

var reservedFlags = map[string]struct{}{
	flagPretty: {}, flagRaw: {}, flagHeader: {}, flagVerbose: {},
	flagBody: {}, flagBodyFile: {}, "help": {},
}

var builtinCommands = map[string]struct{}{
	"list": {}, "describe": {}, "tree": {}, "api": {}, "help": {}, "completion": {},
}

// ErrNoToken is returned before any request when no API token is configured.
var ErrNoToken = errors.New(EnvPrefix + "API_TOKEN is not set")

// HTTPError reports an API reply with status >= 400. The body has already
// been written when it is returned.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string { return fmt.Sprintf("http %d", e.Status) }

// Option customizes the root command.
type Option func(*app)

// WithClientOptions passes options to every HTTP client the CLI builds.
func WithClientOptions(opts ...client.Option) Option {
	return func(a *app) { a.clientOpts = append(a.clientOpts, opts...) }
}

type app struct {
	tree       *cmdtree.CommandTree
	cfg        Config
	clientOpts []client.Option
	logger     *log.Logger
}

// NewRootCmd builds the full command hierarchy for tree.
func NewRootCmd(tree *cmdtree.CommandTree, cfg Config, opts ...Option) *cobra.Command {
	a := &app{tree: tree, cfg: cfg, logger: logging.Discard()}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:           "apicli",
		Short:         "Call API operations described by a command tree",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			verbose, _ := cmd.Flags().GetBool(flagVerbose)
			a.logger = logging.New(cmd.ErrOrStderr(), verbose, "apicli")
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.Bool(flagPretty, false, "Pretty-print JSON output")
	pf.Bool(flagRaw, false, "Print the full API response instead of its result field")
	pf.StringArray(flagHeader, nil, "Add a request header NAME:VALUE (repeatable)")
	pf.BoolP(flagVerbose, "v", false, "Enable verbose logging output")

	root.AddCommand(
		a.newListCmd(),
		a.newDescribeCmd(),
		a.newTreeCmd(),
		a.newAPICmd(),
	)
	a.addResourceCommands(root)
	return root
}

// Execute runs the CLI with the given arguments.
func Execute(ctx context.Context, tree *cmdtree.CommandTree, cfg Config, args []string, stdout, stderr io.Writer, opts ...Option) error {
	cmd := NewRootCmd(tree, cfg, opts...)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

// send performs req and prints the reply. Statuses >= 400 still print the
// body and then fail.
func (a *app) send(cmd *cobra.Command, req client.Request) error {
	if a.cfg.APIToken == "" {
		return ErrNoToken
	}
	endpoint := a.cfg.APIURL
	if endpoint == "" {
		endpoint = a.tree.Endpoint
	}

	globalHeaders, err := headerFlags(cmd)
	if err != nil {
		return err
	}
	req.Headers = append(globalHeaders, req.Headers...)

	opts := append([]client.Option{
		client.WithUserAgent(a.cfg.UserAgent),
		client.WithTimeout(a.cfg.Timeout),
	}, a.clientOpts...)
	c, err := client.New(endpoint, a.cfg.APIToken, opts...)
	if err != nil {
		return err
	}

	a.logger.Debug("sending request", "method", req.Method, "endpoint", endpoint, "path", req.Path, "query", len(req.Query))
	resp, err := c.Execute(cmd.Context(), req)
	if err != nil {
		return err
	}
	a.logger.Debug("received response", "status", resp.Status)

	raw, _ := cmd.Flags().GetBool(flagRaw)
	pretty, _ := cmd.Flags().GetBool(flagPretty)
	if err := writeJSON(cmd.OutOrStdout(), formatOutput(resp.Body, raw), pretty); err != nil {
		return err
	}
	if resp.Status >= 400 {
		return &HTTPError{Status: resp.Status}
	}
	return nil
}
