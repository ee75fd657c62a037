package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/autosubnuclei/autosubnuclei/internal/model"
)

// DefaultSettingsFile is the default settings file name.
const DefaultSettingsFile = ".autosubnuclei"

// ErrSettingsNotFound is returned when the settings file does not exist.
var ErrSettingsNotFound = errors.New("settings file not found")

// Settings represents the persisted user preferences loaded from the
// YAML settings file. The file is optional; every field has a working
// zero value.
type Settings struct {
	// DiscordWebhook is the webhook URL scan notifications are posted to.
	DiscordWebhook string `yaml:"discordWebhook,omitempty"`

	// NotificationsEnabled turns webhook notifications on.
	// A webhook URL without this flag set sends nothing.
	NotificationsEnabled bool `yaml:"notificationsEnabled,omitempty"`

	// DefaultSeverities overrides the built-in default severity list.
	DefaultSeverities []string `yaml:"defaultSeverities,omitempty"`

	// DefaultOutputDir overrides the default output directory.
	DefaultOutputDir string `yaml:"defaultOutputDir,omitempty"`

	// ToolsDir is the managed directory searched for tool executables
	// before falling back to PATH.
	ToolsDir string `yaml:"toolsDir,omitempty"`
}

// Severities parses the DefaultSeverities field, returning nil when the
// field is absent or malformed so the caller falls back to built-ins.
func (s *Settings) Severities() []model.Severity {
	if s == nil || len(s.DefaultSeverities) == 0 {
		return nil
	}
	out := make([]model.Severity, 0, len(s.DefaultSeverities))
	for _, raw := range s.DefaultSeverities {
		sev, err := model.ParseSeverity(raw)
		if err != nil {
			return nil
		}
		out = append(out, sev)
	}
	return out
}

// LoadSettingsFile loads settings from a YAML file.
// If the file does not exist, it returns ErrSettingsNotFound; callers
// decide whether that is fatal based on whether the path was explicit.
func LoadSettingsFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided settings path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FindSettingsFile searches for the settings file in the following order:
//  1. If settingsPath is specified, use it directly
//  2. .autosubnuclei in the current directory
//  3. .autosubnuclei in the user's home directory
//  4. settings.yaml in the XDG config directory
//
// Returns the path if found, or empty string if not found.
func FindSettingsFile(settingsPath string) string {
	if settingsPath != "" {
		if _, err := os.Stat(settingsPath); err == nil {
			return settingsPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, DefaultSettingsFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, DefaultSettingsFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	candidate := filepath.Join(XDGConfigDir(), "settings.yaml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}

	return ""
}
