package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// CredentialProvider yields the session cookie string attached to every
// request. The string is opaque and sent as the Cookie header unchanged.
type CredentialProvider interface {
	SessionCookie() string
}

// StaticCredentials returns a fixed cookie string.
type StaticCredentials string

// SessionCookie implements CredentialProvider.
func (s StaticCredentials) SessionCookie() string {
	return string(s)
}

// EnvCredentials reads the cookie string from an environment variable.
type EnvCredentials struct {
	Variable string
}

// SessionCookie implements CredentialProvider.
func (e EnvCredentials) SessionCookie() string {
	return os.Getenv(e.Variable)
}

// LoadDotEnv loads the given env files, ignoring the ones that do not exist.
// Variables already set in the process environment are not overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	return nil
}
