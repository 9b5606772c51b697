// Package wpcli runs the WordPress command-line tool against one site.
package wpcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// CommandError reports a wp invocation that exited unsuccessfully.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("wp %s: exit %d: %s", strings.Join(e.Args, " "), e.ExitCode, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// CLI invokes the wp binary. Every call disables third-party plugin and
// theme loading so a broken extension cannot break the import.
type CLI struct {
	binary   string
	sitePath string
	logger   *slog.Logger
}

// Option configures a CLI.
type Option func(*CLI)

// WithBinary overrides the wp executable.
func WithBinary(path string) Option {
	return func(c *CLI) {
		if path != "" {
			c.binary = path
		}
	}
}

// WithLogger sets the logger used for command tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CLI) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a CLI bound to the WordPress installation at sitePath.
func New(sitePath string, opts ...Option) *CLI {
	c := &CLI{binary: "wp", sitePath: sitePath, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Binary returns the configured executable name or path.
func (c *CLI) Binary() string { return c.binary }

// LookPath resolves the executable on PATH.
func (c *CLI) LookPath() (string, error) {
	return exec.LookPath(c.binary)
}

// Args builds the full argument vector for a subcommand.
func (c *CLI) Args(args ...string) []string {
	full := make([]string, 0, len(args)+3)
	full = append(full, args...)
	return append(full, "--skip-plugins", "--skip-themes", "--path="+c.sitePath)
}

func (c *CLI) run(ctx context.Context, args ...string) (string, error) {
	path, err := c.LookPath()
	if err != nil {
		return "", fmt.Errorf("%s not found: %w", c.binary, err)
	}

	full := c.Args(args...)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, full...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("running wp", "args", args)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		ce := &CommandError{Args: args, ExitCode: -1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ce.ExitCode = exitErr.ExitCode()
		}
		return "", ce
	}
	return strings.TrimRight(stdout.String(), "\r\n"), nil
}

// IsInstalled reports whether WordPress is installed at the site path.
func (c *CLI) IsInstalled(ctx context.Context) (bool, error) {
	_, err := c.run(ctx, "core", "is-installed")
	if err == nil {
		return true, nil
	}
	var ce *CommandError
	if errors.As(err, &ce) && ce.ExitCode == 1 {
		return false, nil
	}
	return false, err
}

// DBExport writes a full SQL dump of the site database to dest.
func (c *CLI) DBExport(ctx context.Context, dest string) error {
	_, err := c.run(ctx, "db", "export", dest, "--add-drop-table")
	return err
}

// DBImport loads an SQL file into the site database.
func (c *CLI) DBImport(ctx context.Context, src string) error {
	_, err := c.run(ctx, "db", "import", src)
	return err
}

// DBReset drops every table in the site database.
func (c *CLI) DBReset(ctx context.Context) error {
	_, err := c.run(ctx, "db", "reset", "--yes")
	return err
}

// Tables lists every table in the database regardless of prefix.
func (c *CLI) Tables(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "db", "tables", "--all-tables", "--format=csv")
	if err != nil {
		return nil, err
	}
	return splitList(out), nil
}

// Query runs a single SQL statement and returns its raw output.
func (c *CLI) Query(ctx context.Context, sql string) (string, error) {
	return c.run(ctx, "db", "query", sql, "--skip-column-names")
}

// OptionGet reads a site option.
func (c *CLI) OptionGet(ctx context.Context, name string) (string, error) {
	return c.run(ctx, "option", "get", name)
}

// OptionUpdate writes a site option.
func (c *CLI) OptionUpdate(ctx context.Context, name, value string) error {
	_, err := c.run(ctx, "option", "update", name, value)
	return err
}

// SearchReplace rewrites one string everywhere in the prefixed tables, or
// in every site's tables when network is set. Callers issue one call per
// pair; wp treats extra positionals as table names.
func (c *CLI) SearchReplace(ctx context.Context, from, to string, network bool) error {
	args := []string{"search-replace", from, to,
		"--all-tables-with-prefix", "--skip-columns=guid", "--precise", "--report=false"}
	if network {
		args = append(args, "--network")
	}
	_, err := c.run(ctx, args...)
	return err
}

// IsMultisite reports whether the site is a network installation.
func (c *CLI) IsMultisite(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "eval", "echo is_multisite() ? 'yes' : 'no';")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "yes", nil
}

// CacheFlush empties the object cache.
func (c *CLI) CacheFlush(ctx context.Context) error {
	_, err := c.run(ctx, "cache", "flush")
	return err
}

// PluginDeactivate deactivates the named plugins.
func (c *CLI) PluginDeactivate(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := c.run(ctx, append([]string{"plugin", "deactivate"}, names...)...)
	return err
}

// ConfigGet reads a constant or variable from wp-config.php.
func (c *CLI) ConfigGet(ctx context.Context, name string) (string, error) {
	return c.run(ctx, "config", "get", name)
}

// ConfigSet writes a variable in wp-config.php.
func (c *CLI) ConfigSet(ctx context.Context, name, value string) error {
	_, err := c.run(ctx, "config", "set", name, value, "--type=variable")
	return err
}

// MaintenanceMode toggles the site's maintenance page.
func (c *CLI) MaintenanceMode(ctx context.Context, on bool) error {
	action := "deactivate"
	if on {
		action = "activate"
	}
	_, err := c.run(ctx, "maintenance-mode", action)
	return err
}

func splitList(out string) []string {
	var items []string
	for _, f := range strings.FieldsFunc(out, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	}) {
		if f = strings.TrimSpace(f); f != "" {
			items = append(items, f)
		}
	}
	return items
}
