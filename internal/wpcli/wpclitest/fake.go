// Package wpclitest provides an in-memory stand-in for the wp executor.
package wpclitest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/BadgerOps/siteport/internal/wpconfig"
)

var (
	createTable = regexp.MustCompile("(?i)^\\s*CREATE TABLE(?: IF NOT EXISTS)?\\s+`?([A-Za-z0-9_$]+)`?")
	dropTable   = regexp.MustCompile("(?i)^\\s*DROP TABLE(?: IF EXISTS)?\\s+`([A-Za-z0-9_$]+)`")
	selectFrom  = regexp.MustCompile("(?i)^\\s*SELECT 1 FROM\\s+`([A-Za-z0-9_$]+)`")
)

const optionLine = "-- option "

// Fake models a site database as a set of table names plus an option map.
// Dumps it writes are readable SQL comments and CREATE TABLE lines, and it
// imports any file by scanning for CREATE TABLE statements.
type Fake struct {
	mu sync.Mutex

	TableSet map[string]bool
	Options  map[string]string

	// ConfigPath, when set, is the wp-config.php that ConfigGet/ConfigSet use.
	ConfigPath string
	// Prefix is used for table_prefix when ConfigPath is empty.
	Prefix string

	Multisite bool
	Installed bool

	// IgnoreUnderscorePrefix makes ConfigSet succeed without writing when
	// the value starts with "_".
	IgnoreUnderscorePrefix bool
	// ResetLeavesTables makes DBReset report success without dropping anything.
	ResetLeavesTables bool

	ExportErr        error
	ImportHook       func(path string) error
	SearchReplaceErr error
	DeactivateErr    error
	DropErr          map[string]error

	Calls          []string
	SearchReplaces [][2]string
	Deactivated    []string
	Maintenance    bool
}

// New returns a fake holding the given tables.
func New(tables ...string) *Fake {
	f := &Fake{TableSet: map[string]bool{}, Options: map[string]string{}, Installed: true, Prefix: "wp_"}
	for _, t := range tables {
		f.TableSet[t] = true
	}
	return f
}

func (f *Fake) record(format string, args ...any) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

// TableCount returns the number of tables currently held.
func (f *Fake) TableCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.TableSet)
}

// TableNames returns the held tables sorted.
func (f *Fake) TableNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedTables()
}

func (f *Fake) sortedTables() []string {
	names := make([]string, 0, len(f.TableSet))
	for t := range f.TableSet {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

func (f *Fake) IsInstalled(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("core is-installed")
	return f.Installed, nil
}

func (f *Fake) DBExport(ctx context.Context, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("db export %s", dest)
	if f.ExportErr != nil {
		return f.ExportErr
	}

	var b strings.Builder
	b.WriteString("-- fake dump\n")
	for _, t := range f.sortedTables() {
		fmt.Fprintf(&b, "CREATE TABLE `%s` (id int);\n", t)
	}
	keys := make([]string, 0, len(f.Options))
	for k := range f.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s%q %q\n", optionLine, k, f.Options[k])
	}
	return os.WriteFile(dest, []byte(b.String()), 0o600)
}

func (f *Fake) DBImport(ctx context.Context, src string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("db import %s", src)
	if f.ImportHook != nil {
		if err := f.ImportHook(src); err != nil {
			return err
		}
	}

	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = file.Close()
	}()

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if m := createTable.FindStringSubmatch(line); m != nil {
			f.TableSet[m[1]] = true
			continue
		}
		if strings.HasPrefix(line, optionLine) {
			var k, v string
			if _, err := fmt.Sscanf(line[len(optionLine):], "%q %q", &k, &v); err == nil {
				f.Options[k] = v
			}
		}
	}
	return sc.Err()
}

func (f *Fake) DBReset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("db reset")
	if f.ResetLeavesTables {
		return nil
	}
	f.TableSet = map[string]bool{}
	f.Options = map[string]string{}
	return nil
}

func (f *Fake) Tables(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedTables(), nil
}

func (f *Fake) Query(ctx context.Context, sql string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("db query %s", sql)
	if m := dropTable.FindStringSubmatch(sql); m != nil {
		if err := f.DropErr[m[1]]; err != nil {
			return "", err
		}
		delete(f.TableSet, m[1])
		return "", nil
	}
	if m := selectFrom.FindStringSubmatch(sql); m != nil {
		if !f.TableSet[m[1]] {
			return "", fmt.Errorf("table %s doesn't exist", m[1])
		}
		return "1", nil
	}
	return "", fmt.Errorf("fake cannot run query %q", sql)
}

func (f *Fake) OptionGet(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.Options[name]
	if !ok {
		return "", fmt.Errorf("option %q does not exist", name)
	}
	return v, nil
}

func (f *Fake) OptionUpdate(ctx context.Context, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("option update %s %s", name, value)
	f.Options[name] = value
	return nil
}

func (f *Fake) SearchReplace(ctx context.Context, from, to string, network bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if network {
		f.record("search-replace %s %s --network", from, to)
	} else {
		f.record("search-replace %s %s", from, to)
	}
	if f.SearchReplaceErr != nil {
		return f.SearchReplaceErr
	}
	f.SearchReplaces = append(f.SearchReplaces, [2]string{from, to})
	for k, v := range f.Options {
		f.Options[k] = strings.ReplaceAll(v, from, to)
	}
	return nil
}

func (f *Fake) IsMultisite(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Multisite, nil
}

func (f *Fake) CacheFlush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("cache flush")
	return nil
}

func (f *Fake) PluginDeactivate(ctx context.Context, names ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("plugin deactivate %s", strings.Join(names, " "))
	if f.DeactivateErr != nil {
		return f.DeactivateErr
	}
	f.Deactivated = append(f.Deactivated, names...)
	return nil
}

func (f *Fake) ConfigGet(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != "table_prefix" {
		return "", fmt.Errorf("fake only knows table_prefix, got %q", name)
	}
	if f.ConfigPath == "" {
		return f.Prefix, nil
	}
	return wpconfig.ReadPrefix(f.ConfigPath)
}

func (f *Fake) ConfigSet(ctx context.Context, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("config set %s %s", name, value)
	if name != "table_prefix" {
		return fmt.Errorf("fake only knows table_prefix, got %q", name)
	}
	if f.IgnoreUnderscorePrefix && strings.HasPrefix(value, "_") {
		return nil
	}
	if f.ConfigPath == "" {
		f.Prefix = value
		return nil
	}
	return wpconfig.SetPrefix(f.ConfigPath, value)
}

func (f *Fake) MaintenanceMode(ctx context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("maintenance-mode %v", on)
	f.Maintenance = on
	return nil
}

// ErrForced is a convenience error for ImportHook and friends.
var ErrForced = errors.New("forced failure")
