// Package identity provides credential sources for authenticating
// against the backend agent. Token acquisition itself is out of
// scope: callers hand the client whatever credential material exists,
// and the backend rejects unauthenticated sockets on its own.
package identity

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TokenSource supplies a bearer token for the active user. The token
// may be refreshed out of band, so implementations are consulted on
// every connection attempt.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static wraps a fixed token string.
type Static string

// Token returns the wrapped token.
func (s Static) Token(_ context.Context) (string, error) {
	return string(s), nil
}

// Env reads the token from an environment variable on each call.
func Env(key string) TokenSource {
	return envSource(key)
}

type envSource string

func (e envSource) Token(_ context.Context) (string, error) {
	return strings.TrimSpace(os.Getenv(string(e))), nil
}

// File reads the token from a file on each call, so external refresh
// of the file is picked up by the next connection attempt.
func File(path string) TokenSource {
	return fileSource(path)
}

type fileSource string

func (f fileSource) Token(_ context.Context) (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// None is a TokenSource that always yields an empty credential.
func None() TokenSource {
	return Static("")
}
