package attribute

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PathSeparator separates a JSON column from the nested key in a dotted write
// such as "settings.theme".
const PathSeparator = "."

// SplitPath returns the column and nested segments of a dotted key.
func SplitPath(key string) (column string, segments []string) {
	parts := strings.Split(key, PathSeparator)
	return parts[0], parts[1:]
}

// fillPath writes value at the nested location of key inside the JSON column
// that prefixes it.
func (m *Model) fillPath(key string, value any) error {
	column, segments := SplitPath(key)
	if column == "" || len(segments) == 0 {
		return fmt.Errorf("%w: '%s'", ErrInvalidPath, key)
	}
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("%w: '%s' has an empty segment", ErrInvalidPath, key)
		}
	}
	if c, ok := m.schema.Cast(column); ok && c.Kind != CastJSON {
		return fmt.Errorf("%w: column '%s' is cast to %s, not json", ErrInvalidPath, column, c.Kind)
	}

	root := map[string]any{}
	switch current := m.attrs[column].(type) {
	case nil:
	case string:
		if current != "" {
			if err := json.Unmarshal([]byte(current), &root); err != nil {
				return fmt.Errorf("%w: column '%s' does not hold a JSON object: %w", ErrInvalidPath, column, err)
			}
		}
	case map[string]any:
		for k, v := range current {
			root[k] = v
		}
	default:
		return fmt.Errorf("%w: column '%s' holds %T", ErrInvalidPath, column, current)
	}

	node := root
	for _, s := range segments[:len(segments)-1] {
		child, ok := node[s].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[s] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value

	data, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("%w: encode column '%s': %w", ErrInvalidPath, column, err)
	}
	m.attrs[column] = string(data)
	return nil
}
