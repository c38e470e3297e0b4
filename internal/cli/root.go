// Package cli implements the portalctl commands: the candidate flow
// (register, upload, pay, admit card) and the admin views.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/platform/observability"
	"github.com/bobbygour30/admitcard/internal/portalclient"
	"github.com/bobbygour30/admitcard/internal/workflow"
)

const (
	defaultBaseURL = "http://localhost:8080"
	currentFlow    = "current"
)

// App holds the state shared by every command of one invocation.
type App struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	baseURL     string
	statePath   string
	catalogPath string
	verbose     bool
	noColor     bool
	httpClient  portalclient.HTTPClient

	client  *portalclient.Client
	tokens  *portalclient.TokenStore
	catalog *domain.Catalog
	logger  *zap.Logger
}

// Option configures an App.
type Option func(*App)

// WithIO replaces stdin, stdout and stderr.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(a *App) {
		if in != nil {
			a.in = bufio.NewReader(in)
		}
		if out != nil {
			a.out = out
		}
		if errOut != nil {
			a.errOut = errOut
		}
	}
}

// WithHTTPClient sets the HTTP client used to reach the portal.
func WithHTTPClient(client portalclient.HTTPClient) Option {
	return func(a *App) {
		a.httpClient = client
	}
}

// NewRootCommand builds the portalctl command tree.
func NewRootCommand(version string, opts ...Option) *cobra.Command {
	app := &App{
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		errOut: os.Stderr,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}

	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Register for the exam, pay the fee and fetch admit cards",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return app.close()
		},
	}
	root.SetIn(app.in)
	root.SetOut(app.out)
	root.SetErr(app.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&app.baseURL, "base-url", envOr("PORTALCTL_BASE_URL", defaultBaseURL), "portal service URL")
	flags.StringVar(&app.statePath, "state", envOr("PORTALCTL_STATE", defaultStatePath()), "local state database")
	flags.StringVar(&app.catalogPath, "catalog", os.Getenv("PORTALCTL_CATALOG"), "catalogue YAML used for local validation")
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "log workflow events to stderr")
	flags.BoolVar(&app.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		app.applyCmd(),
		app.registerCmd(),
		app.uploadCmd(),
		app.statusCmd(),
		app.admitCardCmd(),
		app.adminCmd(),
	)
	return root
}

func (a *App) open() error {
	if a.noColor {
		color.NoColor = true
	}
	if a.verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		logger, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		a.logger = logger.Named("portalctl")
	} else {
		a.logger = zap.NewNop()
	}

	catalog := domain.DefaultCatalog()
	if path := strings.TrimSpace(a.catalogPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read catalog: %w", err)
		}
		if catalog, err = domain.ParseCatalog(data); err != nil {
			return err
		}
	}
	a.catalog = catalog

	client, err := portalclient.New(a.baseURL, portalclient.WithHTTPClient(a.httpClient))
	if err != nil {
		return err
	}
	a.client = client

	tokens, err := portalclient.OpenTokenStore(a.statePath)
	if err != nil {
		return err
	}
	a.tokens = tokens
	return nil
}

func (a *App) close() error {
	var errs []error
	if a.tokens != nil {
		errs = append(errs, a.tokens.Close())
		a.tokens = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

func (a *App) controller() (*workflow.Controller, error) {
	return workflow.NewController(a.client, terminalCheckout(a.in, a.out),
		workflow.WithCatalog(a.catalog),
		workflow.WithLogger(observability.NewEventLogger(a.logger.Named("workflow"))),
	)
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
	headColor = color.New(color.FgCyan, color.Bold)
)

func (a *App) success(format string, args ...any) {
	okColor.Fprintf(a.out, "✔ "+format+"\n", args...)
}

func (a *App) warn(format string, args ...any) {
	warnColor.Fprintf(a.out, "! "+format+"\n", args...)
}

func (a *App) heading(text string) {
	headColor.Fprintln(a.out, text)
}

// Fail prints err the way users should see it. Remote errors show the service's message.
func Fail(w io.Writer, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		failColor.Fprintln(w, "✘ Please fix the following:")
		for _, key := range sortedKeys(verr.Fields) {
			fmt.Fprintf(w, "  %s: %s\n", key, verr.Fields[key])
		}
		return
	}
	failColor.Fprintf(w, "✘ %s\n", portalclient.Message(err))
}

func (a *App) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".portalctl", "state.db")
	}
	return filepath.Join(home, ".portalctl", "state.db")
}
