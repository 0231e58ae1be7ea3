// Package idgen generates the keys of change log entries and comments.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Key prefixes.
const (
	PrefixChange  = "ch-"
	PrefixComment = "cm-"
)

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	length   = 16
)

// ChangeKey returns a new change log entry key.
func ChangeKey() (string, error) {
	return generate(PrefixChange)
}

// CommentKey returns a new comment key.
func CommentKey() (string, error) {
	return generate(PrefixComment)
}

func generate(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
