package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Key is a credential reference: either the name of an environment
// variable or a shell command whose trimmed stdout is the secret.
// Exactly one of the two fields should be set.
type Key struct {
	Env string `mapstructure:"env"`
	Cmd string `mapstructure:"cmd"`
}

// IsZero reports whether the key references nothing.
func (k Key) IsZero() bool {
	return k.Env == "" && k.Cmd == ""
}

// Resolve returns the secret value the key references.
func (k Key) Resolve() (string, error) {
	switch {
	case k.Env != "":
		val, ok := os.LookupEnv(k.Env)
		if !ok {
			return "", fmt.Errorf("environment variable %q not found", k.Env)
		}
		return val, nil
	case k.Cmd != "":
		out, err := exec.Command("sh", "-c", k.Cmd).Output()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return "", fmt.Errorf("command %q failed: %s", k.Cmd, strings.TrimSpace(string(exitErr.Stderr)))
			}
			return "", fmt.Errorf("executing command %q: %w", k.Cmd, err)
		}
		return strings.TrimSpace(string(out)), nil
	default:
		return "", errors.New("key has neither env nor cmd set")
	}
}
