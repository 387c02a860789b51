// Package enums mirrors the Postgres enum types. Every type exposes IsValid
// and a Parse function that rejects values outside the enum.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

func parse[T ~string](set []T, value, kind string) (T, error) {
	candidate := T(strings.TrimSpace(value))
	if slices.Contains(set, candidate) {
		return candidate, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
