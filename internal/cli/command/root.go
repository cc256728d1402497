// Package command defines the expensectl command tree.
package command

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/utafrali/ExpenseGo/internal/app"
	"github.com/utafrali/ExpenseGo/internal/config"
	"github.com/utafrali/ExpenseGo/internal/session"
	apperrors "github.com/utafrali/ExpenseGo/pkg/errors"
	"github.com/utafrali/ExpenseGo/pkg/logger"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const (
	metaClient = "client"
	metaStdin  = "stdin"
)

var errNotSignedIn = errors.New("not signed in; run 'expensectl login'")

// flagEnv maps global flags onto the configuration variables they override.
var flagEnv = map[string]string{
	"api-url":        "EXPENSE_API_URL",
	"store":          "CREDENTIAL_STORE",
	"credential-dir": "CREDENTIAL_DIR",
	"log-level":      "LOG_LEVEL",
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "expensectl",
		Usage:   "Expense tracker command-line client",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			LoginCommand(),
			RegisterCommand(),
			LogoutCommand(),
			WhoamiCommand(),
			StatusCommand(),
			CategoriesCommand(),
			ExpensesCommand(),
			ServeCommand(),
		},
		After: closeClient,
	}
}

// globalFlags returns the global CLI flags. Unset flags fall back to the
// environment.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "api-url",
			Aliases: []string{"u"},
			Usage:   "Expense API base URL (default $EXPENSE_API_URL)",
		},
		&cli.StringFlag{
			Name:  "store",
			Usage: "Credential store: memory, badger or redis (default $CREDENTIAL_STORE)",
		},
		&cli.StringFlag{
			Name:  "credential-dir",
			Usage: "Directory of the badger credential store",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.BoolFlag{
			Name:  "verify",
			Usage: "Check the stored session with the server on startup",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json",
			Value:   "table",
		},
	}
}

// loadConfig layers the global flags over the process environment.
func loadConfig(c *cli.Context) (*config.Config, error) {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	for flag, key := range flagEnv {
		if c.IsSet(flag) {
			vars[key] = c.String(flag)
		}
	}
	if c.IsSet("verify") {
		vars["VERIFY_ON_RESTORE"] = fmt.Sprint(c.Bool("verify"))
	}
	return config.LoadFrom(vars)
}

// clientFrom returns the command's client, building it and restoring the
// stored session on first use.
func clientFrom(c *cli.Context) (*app.Client, error) {
	if cl, ok := c.App.Metadata[metaClient].(*app.Client); ok {
		return cl, nil
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	l := logger.NewWithWriter("expensectl", cfg.LogLevel, c.App.ErrWriter)

	cl, err := app.NewClient(c.Context, cfg, l)
	if err != nil {
		return nil, err
	}
	cl.Restore(c.Context)
	c.App.Metadata[metaClient] = cl
	return cl, nil
}

// requireSession returns the client when a session is signed in.
func requireSession(c *cli.Context) (*app.Client, error) {
	cl, err := clientFrom(c)
	if err != nil {
		return nil, err
	}
	if !cl.Session.Snapshot().IsAuthenticated() {
		return nil, errNotSignedIn
	}
	return cl, nil
}

func closeClient(c *cli.Context) error {
	cl, ok := c.App.Metadata[metaClient].(*app.Client)
	if !ok {
		return nil
	}
	delete(c.App.Metadata, metaClient)
	return cl.Close()
}

// prompt writes label to stderr and reads one line from the app's input.
func prompt(c *cli.Context, label string) (string, error) {
	r, ok := c.App.Metadata[metaStdin].(*bufio.Reader)
	if !ok {
		r = bufio.NewReader(c.App.Reader)
		c.App.Metadata[metaStdin] = r
	}
	fmt.Fprint(c.App.ErrWriter, label)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// resultError turns a failed session result into a command error.
func resultError(r session.Result) error {
	return errors.New(withFields(r.Message, r.Fields))
}

// apiError describes a failed API call the way the server phrased it.
func apiError(err error, fallback string) error {
	if errors.Is(err, apperrors.ErrSessionEnded) {
		return errNotSignedIn
	}
	var appErr *apperrors.AppError
	var fields map[string]string
	if errors.As(err, &appErr) {
		fields = appErr.Fields
	}
	return errors.New(withFields(apperrors.Message(err, fallback), fields))
}

func withFields(msg string, fields map[string]string) string {
	if len(fields) == 0 {
		return msg
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(msg)
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %s: %s", name, fields[name])
	}
	return b.String()
}
