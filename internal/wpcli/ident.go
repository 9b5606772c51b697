package wpcli

import "fmt"

// QuoteIdent returns name as a back-quoted MySQL identifier. Only ASCII
// letters, digits, underscore and dollar are accepted so a listed table name
// can never smuggle SQL into a statement.
func QuoteIdent(name string) (string, error) {
	if name == "" || len(name) > 64 {
		return "", fmt.Errorf("invalid identifier length %d", len(name))
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '$':
		default:
			return "", fmt.Errorf("invalid character %q in identifier %q", c, name)
		}
	}
	return "`" + name + "`", nil
}
