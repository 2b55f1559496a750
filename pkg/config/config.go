// Package config loads the widget settings: built-in defaults, then a YAML
// file, then `.env` and SUPPORT_WIDGET_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-go-golems/support-widget/pkg/escalation"
	"github.com/go-go-golems/support-widget/pkg/persistence/identity"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix        = "SUPPORT_WIDGET_"
	AppDirName       = ".support-widget"
	DefaultBaseURL   = "http://localhost:8000"
	DefaultAssistant = "AIRA"
)

type Settings struct {
	APIBaseURL    string            `yaml:"api_base_url" env:"API_BASE_URL"`
	AssistantName string            `yaml:"assistant_name" env:"ASSISTANT_NAME"`
	HTTPTimeout   time.Duration     `yaml:"http_timeout" env:"HTTP_TIMEOUT"`
	Headers       map[string]string `yaml:"headers" env:"HEADERS"`

	Identity   identity.Settings `yaml:"identity" envPrefix:"IDENTITY_"`
	Escalation Escalation        `yaml:"escalation" envPrefix:"ESCALATION_"`
	Upload     Upload            `yaml:"upload" envPrefix:"UPLOAD_"`
}

type Escalation struct {
	// Markers replaces the default keyword list when set in the file.
	Markers         []escalation.Marker `yaml:"markers"`
	DisableKeywords bool                `yaml:"disable_keywords" env:"DISABLE_KEYWORDS"`
}

type Upload struct {
	AllowedContentTypes []string `yaml:"allowed_content_types" env:"ALLOWED_CONTENT_TYPES" envSeparator:","`
}

func Default() *Settings {
	return &Settings{
		APIBaseURL:    DefaultBaseURL,
		AssistantName: DefaultAssistant,
		HTTPTimeout:   30 * time.Second,
		Headers:       map[string]string{"ngrok-skip-browser-warning": "true"},
		Identity:      identity.Settings{Backend: identity.BackendFile},
		Upload:        Upload{AllowedContentTypes: []string{"text/csv"}},
	}
}

// AppDir is ~/.support-widget.
func AppDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "config: resolve home directory")
	}
	return filepath.Join(home, AppDirName), nil
}

func DefaultConfigPath() (string, error) {
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load layers the configuration. An empty path reads the default config
// file if it exists; an explicit path must exist.
func Load(path string) (*Settings, error) {
	s := Default()

	explicit := path != ""
	if explicit {
		p, err := homedir.Expand(path)
		if err != nil {
			return nil, errors.Wrapf(err, "config: expand %s", path)
		}
		path = p
	} else {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := s.mergeFile(path, explicit); err != nil {
		return nil, err
	}

	// .env is optional.
	_ = godotenv.Load()

	if err := env.ParseWithOptions(s, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, "config: parse environment")
	}
	if err := s.Finalize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) mergeFile(path string, required bool) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return errors.Wrapf(err, "config: read %s", path)
	}
	if err := yaml.Unmarshal(b, s); err != nil {
		return errors.Wrapf(err, "config: parse %s", path)
	}
	return nil
}

// Finalize fills derived defaults and validates.
func (s *Settings) Finalize() error {
	s.APIBaseURL = strings.TrimSpace(s.APIBaseURL)
	if s.APIBaseURL == "" {
		return errors.New("config: api_base_url is required")
	}
	if s.HTTPTimeout <= 0 {
		return errors.Errorf("config: http_timeout must be positive, got %s", s.HTTPTimeout)
	}
	if strings.TrimSpace(s.AssistantName) == "" {
		s.AssistantName = DefaultAssistant
	}
	if s.Identity.Backend == "" {
		s.Identity.Backend = identity.BackendFile
	}
	if s.Identity.Path != "" {
		p, err := homedir.Expand(s.Identity.Path)
		if err != nil {
			return errors.Wrapf(err, "config: expand identity.path %s", s.Identity.Path)
		}
		s.Identity.Path = p
	}
	if s.Identity.Path == "" {
		switch s.Identity.Backend {
		case identity.BackendFile, identity.BackendSQLite:
			dir, err := AppDir()
			if err != nil {
				return err
			}
			name := "identity.yaml"
			if s.Identity.Backend == identity.BackendSQLite {
				name = "identity.db"
			}
			s.Identity.Path = filepath.Join(dir, name)
		}
	}
	if s.Identity.Backend == identity.BackendRedis && s.Identity.RedisAddr == "" {
		s.Identity.RedisAddr = "localhost:6379"
	}
	return nil
}

// EscalationMarkers is the keyword list handed to the controller: nil means
// the built-in defaults, empty disables the fallback.
func (s *Settings) EscalationMarkers() []escalation.Marker {
	if s.Escalation.DisableKeywords {
		return []escalation.Marker{}
	}
	return s.Escalation.Markers
}
