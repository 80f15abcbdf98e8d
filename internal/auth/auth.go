// Package auth resolves the identity the terminal client acts as.
// The server trusts the identity it is given; authentication proper happens
// upstream. Several sources are tried in order, first match wins.
package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// EnvVar names the environment variable holding the user id.
const EnvVar = "KANBAN_USER"

// UserProvider supplies the current user's id.
type UserProvider interface {
	User() (string, error)
}

// StaticProvider returns a fixed user id, typically from a flag or config file.
type StaticProvider struct {
	ID string
}

// User returns the configured id, or an error if it is blank.
func (s *StaticProvider) User() (string, error) {
	id := strings.TrimSpace(s.ID)
	if id == "" {
		return "", errors.New("no user configured")
	}
	return id, nil
}

// EnvProvider reads the user id from KANBAN_USER.
type EnvProvider struct{}

// User reads the KANBAN_USER environment variable.
func (e *EnvProvider) User() (string, error) {
	id := strings.TrimSpace(os.Getenv(EnvVar))
	if id == "" {
		return "", fmt.Errorf("%s environment variable not set or empty", EnvVar)
	}
	return id, nil
}

// GitProvider falls back to the email in the user's git configuration.
type GitProvider struct{}

// User shells out to `git config --get user.email`.
func (g *GitProvider) User() (string, error) {
	cmd := exec.Command("git", "config", "--get", "user.email")
	output, err := cmd.Output()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			return "", errors.New("git not found in PATH")
		}
		return "", fmt.Errorf("git config user.email failed: %w", err)
	}

	id := strings.TrimSpace(string(output))
	if id == "" {
		return "", errors.New("git user.email is empty")
	}
	return id, nil
}

// Resolve tries each provider in order and returns the first user id found.
func Resolve(providers ...UserProvider) (string, error) {
	var errs []error
	for _, p := range providers {
		id, err := p.User()
		if err == nil {
			return id, nil
		}
		errs = append(errs, err)
	}
	return "", fmt.Errorf(
		"could not determine user (%w).\n"+
			"Please either:\n"+
			"  1. Pass --user or set user in the config file, or\n"+
			"  2. Set the %s environment variable, or\n"+
			"  3. Set git config user.email",
		errors.Join(errs...), EnvVar,
	)
}

// GetUser resolves the user from an explicit value, then KANBAN_USER, then git.
func GetUser(explicit string) (string, error) {
	return Resolve(&StaticProvider{ID: explicit}, &EnvProvider{}, &GitProvider{})
}
