package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrNotFound is returned by Open when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// Store keeps uploaded images addressed by a flat key.
type Store interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces a user supplied file name to a flat ASCII name that
// is safe to use as a key: accents are folded, path separators and whitespace
// become underscores, anything outside [A-Za-z0-9_.-] is dropped and leading
// or trailing dots and underscores are trimmed.
func SecureFilename(name string) (string, error) {
	folded := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, norm.NFKD.String(name))

	folded = strings.NewReplacer("/", " ", "\\", " ").Replace(folded)
	joined := strings.Join(strings.Fields(folded), "_")
	cleaned := strings.Trim(unsafeChars.ReplaceAllString(joined, ""), "._")
	if cleaned == "" {
		return "", fmt.Errorf("file name %q has no usable characters", name)
	}
	return cleaned, nil
}

func checkKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}
