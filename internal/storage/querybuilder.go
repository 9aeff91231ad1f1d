package storage

import (
	"fmt"
	"strings"
)

// MaxInClauseKeys bounds the number of keys in a single batch lookup.
const MaxInClauseKeys = 500

// InClause renders "column IN ($offset+1, ...)" for n positional parameters.
// Values are never interpolated; callers pass them as query arguments.
func InClause(column string, n, offset int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("storage: in clause needs at least one key")
	}
	if n > MaxInClauseKeys {
		return "", fmt.Errorf("%w: %d > %d", ErrTooManyKeys, n, MaxInClauseKeys)
	}
	var b strings.Builder
	b.Grow(len(column) + 6 + n*5)
	b.WriteString(column)
	b.WriteString(" IN (")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", offset+i+1)
	}
	b.WriteByte(')')
	return b.String(), nil
}

// StringArgs converts keys to a positional argument slice.
func StringArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}

// dedupeKeys drops empty and repeated keys, keeping first-seen order.
func dedupeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
