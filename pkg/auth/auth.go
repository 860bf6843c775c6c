package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrMissingKey indicates that the Authorization header was not provided.
	ErrMissingKey = errors.New("missing API key")
	// ErrInvalidPrefix indicates the header did not use the Key or Bearer prefix.
	ErrInvalidPrefix = errors.New("invalid authorization prefix")
	// ErrUnknownKey indicates the key is not in the keyring.
	ErrUnknownKey = errors.New("unknown API key")
)

// ExtractKey parses "Authorization: Key <token>" or "Authorization: Bearer <token>".
func ExtractKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingKey
	}

	var token string
	switch {
	case strings.HasPrefix(header, "Key "):
		token = strings.TrimPrefix(header, "Key ")
	case strings.HasPrefix(header, "Bearer "):
		token = strings.TrimPrefix(header, "Bearer ")
	default:
		return "", ErrInvalidPrefix
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingKey
	}
	return token, nil
}

// Keyring holds the API keys accepted by the JSON API. An empty keyring
// accepts every request.
type Keyring struct {
	keys [][]byte
}

func NewKeyring(keys []string) *Keyring {
	k := &Keyring{}
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			k.keys = append(k.keys, []byte(key))
		}
	}
	return k
}

func (k *Keyring) Enabled() bool { return k != nil && len(k.keys) > 0 }

// Check authorises r against the keyring.
func (k *Keyring) Check(r *http.Request) error {
	if !k.Enabled() {
		return nil
	}
	token, err := ExtractKey(r)
	if err != nil {
		return err
	}
	for _, key := range k.keys {
		if subtle.ConstantTimeCompare(key, []byte(token)) == 1 {
			return nil
		}
	}
	return ErrUnknownKey
}
