//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// secrets maps service -> account -> value. Without a system keychain the
// map lives in an owner-only JSON file next to the data directory.
type secrets map[string]map[string]string

func secretsFilePath() string {
	dir, ok := xdgDir("XDG_DATA_HOME", ".local", "share")
	if !ok {
		dir = "."
	}
	return filepath.Join(dir, "secrets.json")
}

func readSecrets(path string) (secrets, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return secrets{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	s := secrets{}
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", path, err)
	}
	return s, nil
}

// writeSecrets replaces path atomically so a crash never leaves a
// truncated file behind.
func writeSecrets(path string, s secrets) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".secrets-*.json")
	if err != nil {
		return fmt.Errorf("creating secrets file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing secrets file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func keychainGet(service, account string) ([]byte, error) {
	s, err := readSecrets(secretsFilePath())
	if err != nil {
		return nil, err
	}
	val, ok := s[service][account]
	if !ok {
		return nil, fmt.Errorf("secret %s/%s not found", service, account)
	}
	return []byte(val), nil
}

// keychainSet refuses to overwrite a file it cannot parse.
func keychainSet(service, account, value string) error {
	path := secretsFilePath()
	s, err := readSecrets(path)
	if err != nil {
		return err
	}
	if s[service] == nil {
		s[service] = make(map[string]string)
	}
	s[service][account] = value
	return writeSecrets(path, s)
}
