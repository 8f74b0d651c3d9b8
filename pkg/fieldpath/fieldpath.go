// Package fieldpath parses dotted, indexed field paths such as
// "data.items[0].correlation_id" into typed steps and resolves them against
// arbitrary JSON-shaped value trees (maps, slices, scalars).
package fieldpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrEmptyPath indicates an empty path expression.
	ErrEmptyPath = errors.New("empty field path")

	// ErrNotFound indicates the path does not resolve in the given tree.
	ErrNotFound = errors.New("field path not found")
)

// Step is one segment of a parsed path: a field access, optionally followed
// by a list index.
type Step struct {
	Field    string
	Index    int
	HasIndex bool
}

// Path is a parsed sequence of steps, applied left to right.
type Path []Step

// Parse parses a path expression into typed steps. Supported forms:
// "a", "a.b", "a.b[2].c", "items[0]". Negative indexes are rejected.
func Parse(expr string) (Path, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrEmptyPath
	}

	var path Path

	for _, segment := range strings.Split(expr, ".") {
		if segment == "" {
			return nil, fmt.Errorf("invalid field path %q: empty segment", expr)
		}

		field := segment
		indexes := ""

		if open := strings.IndexByte(segment, '['); open >= 0 {
			field = segment[:open]
			indexes = segment[open:]

			if field == "" {
				return nil, fmt.Errorf("invalid field path %q: index without field", expr)
			}
		}

		step := Step{Field: field}

		if indexes != "" {
			if !strings.HasSuffix(indexes, "]") {
				return nil, fmt.Errorf("invalid field path %q: unterminated index", expr)
			}

			idx, err := strconv.Atoi(indexes[1 : len(indexes)-1])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid field path %q: bad index %q", expr, indexes)
			}

			step.Index = idx
			step.HasIndex = true
		}

		path = append(path, step)
	}

	return path, nil
}

// Resolve applies the path to a value tree. It returns ErrNotFound when any
// step does not resolve, wrapped with the failing segment.
func (p Path) Resolve(root any) (any, error) {
	current := root

	for _, step := range p {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not an object", ErrNotFound, step.Field)
		}

		value, exists := m[step.Field]
		if !exists {
			return nil, fmt.Errorf("%w: missing field %q", ErrNotFound, step.Field)
		}

		if step.HasIndex {
			list, ok := value.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: %q is not a list", ErrNotFound, step.Field)
			}

			if step.Index >= len(list) {
				return nil, fmt.Errorf("%w: index %d out of range for %q", ErrNotFound, step.Index, step.Field)
			}

			value = list[step.Index]
		}

		current = value
	}

	return current, nil
}

// Head returns the first field of the path.
func (p Path) Head() string {
	if len(p) == 0 {
		return ""
	}

	return p[0].Field
}

// Rest returns the path without its first step.
func (p Path) Rest() Path {
	if len(p) <= 1 {
		return nil
	}

	return p[1:]
}

// String reassembles the path expression.
func (p Path) String() string {
	var b strings.Builder

	for i, step := range p {
		if i > 0 {
			b.WriteByte('.')
		}

		b.WriteString(step.Field)

		if step.HasIndex {
			fmt.Fprintf(&b, "[%d]", step.Index)
		}
	}

	return b.String()
}

// Lookup is a convenience for Parse followed by Resolve.
func Lookup(expr string, root any) (any, error) {
	path, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	return path.Resolve(root)
}
