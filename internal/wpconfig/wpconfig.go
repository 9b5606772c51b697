// Package wpconfig reads and rewrites the table prefix assignment in
// wp-config.php.
package wpconfig

import (
	"errors"
	"fmt"
	"os"
	"regexp"
)

// ErrNoPrefixLine is returned when wp-config.php has no $table_prefix assignment.
var ErrNoPrefixLine = errors.New("no $table_prefix assignment found")

var (
	prefixLine  = regexp.MustCompile(`(?m)^([ \t]*\$table_prefix[ \t]*=[ \t]*)(['"])([^'"]*)(['"])([ \t]*;)`)
	validPrefix = regexp.MustCompile(`^[A-Za-z0-9_]*$`)
)

// ValidPrefix reports whether p is safe to write as a table prefix.
func ValidPrefix(p string) bool { return validPrefix.MatchString(p) }

// ReadPrefix returns the value assigned to $table_prefix.
func ReadPrefix(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	m := prefixLine.FindSubmatch(data)
	if m == nil {
		return "", fmt.Errorf("%s: %w", path, ErrNoPrefixLine)
	}
	return string(m[3]), nil
}

// SetPrefix replaces the first $table_prefix assignment in place,
// keeping the file's permissions and quoting style.
func SetPrefix(path, prefix string) error {
	if !ValidPrefix(prefix) {
		return fmt.Errorf("refusing to write invalid table prefix %q", prefix)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	loc := prefixLine.FindSubmatchIndex(data)
	if loc == nil {
		return fmt.Errorf("%s: %w", path, ErrNoPrefixLine)
	}
	// loc[6]:loc[7] is the quoted value
	out := make([]byte, 0, len(data)+len(prefix))
	out = append(out, data[:loc[6]]...)
	out = append(out, prefix...)
	out = append(out, data[loc[7]:]...)

	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Backup holds the pre-edit content of a config file.
type Backup struct {
	path string
	data []byte
	mode os.FileMode
}

// Snapshot captures path's current content so it can be put back.
func Snapshot(path string) (*Backup, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &Backup{path: path, data: data, mode: info.Mode().Perm()}, nil
}

// Path returns the file the backup was taken from.
func (b *Backup) Path() string { return b.path }

// Restore writes the captured content back.
func (b *Backup) Restore() error {
	if err := os.WriteFile(b.path, b.data, b.mode); err != nil {
		return fmt.Errorf("restoring %s: %w", b.path, err)
	}
	return nil
}
