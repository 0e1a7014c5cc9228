// Package credentials looks up provider API keys the way the host tool
// stores them: a keys.json file in the user directory, then an environment
// variable.
package credentials

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"llmdeepseek/internal/core"
)

// KeysFile is the key store file name inside the user directory.
const KeysFile = "keys.json"

// Source resolves API keys by provider name.
type Source struct {
	keysPath string
	envVars  map[string]string // provider -> environment variable
}

var _ core.CredentialSource = (*Source)(nil)

// New creates a Source reading <userDir>/keys.json and falling back to the
// environment variable registered for each provider in envVars.
func New(userDir string, envVars map[string]string) *Source {
	s := &Source{envVars: envVars}
	if userDir != "" {
		s.keysPath = filepath.Join(userDir, KeysFile)
	}
	return s
}

// Get returns the key for provider. Blank keys count as missing.
func (s *Source) Get(provider string) (string, bool) {
	if key := s.fromFile(provider); key != "" {
		return key, true
	}
	if name := s.envVars[provider]; name != "" {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			return key, true
		}
	}
	return "", false
}

func (s *Source) fromFile(provider string) string {
	if s.keysPath == "" {
		return ""
	}
	data, err := os.ReadFile(s.keysPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to read key store", "path", s.keysPath, "error", err)
		}
		return ""
	}
	if !gjson.ValidBytes(data) {
		slog.Warn("ignoring invalid key store", "path", s.keysPath)
		return ""
	}
	return strings.TrimSpace(gjson.GetBytes(data, gjson.Escape(provider)).String())
}
