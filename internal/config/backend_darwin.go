//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.keydocs.app"

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "keydocs")
	}
	return "keydocs-data"
}

// darwinBackend keeps keys in UserDefaults through the defaults(1) tool.
type darwinBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return &darwinBackend{domain: defaultsDomain}
}

// defaults runs `defaults <verb> <domain> args...`. missing reports exit
// status 1, which defaults uses for an absent key.
func (b *darwinBackend) defaults(verb string, args ...string) (out string, missing bool, err error) {
	cmd := exec.Command("defaults", append([]string{verb, b.domain}, args...)...)
	raw, err := cmd.CombinedOutput()
	out = strings.TrimSpace(string(raw))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return out, true, nil
		}
		return out, false, fmt.Errorf("defaults %s %s: %w (%s)", verb, strings.Join(args, " "), err, out)
	}
	return out, false, nil
}

func (b *darwinBackend) GetString(key string) (string, bool, error) {
	out, missing, err := b.defaults("read", key)
	if err != nil || missing {
		return "", false, err
	}
	return out, true, nil
}

func (b *darwinBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

func (b *darwinBackend) SetString(key, val string) error {
	_, _, err := b.defaults("write", key, "-string", val)
	return err
}

func (b *darwinBackend) SetInt(key string, val int) error {
	_, _, err := b.defaults("write", key, "-int", strconv.Itoa(val))
	return err
}

// Delete treats an absent key as already deleted.
func (b *darwinBackend) Delete(key string) error {
	_, _, err := b.defaults("delete", key)
	return err
}
