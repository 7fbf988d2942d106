package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix            = "BASECAMP"
	defaultAPIBaseURL    = "http://127.0.0.1:8080"
	defaultCollection    = "adventures"
	defaultLogLevel      = "info"
	defaultLogEncoding   = "console"
	defaultServerAddress = "127.0.0.1:8080"
	defaultDatabasePath  = "basecamp.db"
)

// AppConfig captures runtime configuration for the CLI and the development server.
type AppConfig struct {
	APIBaseURL    string
	Collection    adventures.Collection
	UserID        string
	Username      string
	AvatarURL     string
	LogLevel      string
	LogEncoding   string
	ShareBaseURL  string
	ServerAddress string
	DatabasePath  string
	PublicBaseURL string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("api.base_url", defaultAPIBaseURL)
	configViper.SetDefault("api.collection", defaultCollection)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("server.address", defaultServerAddress)
	configViper.SetDefault("server.database_path", defaultDatabasePath)
}

// LoadDotEnv exports the variables of an optional .env file into the process
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	collection, err := adventures.ParseCollection(configViper.GetString("api.collection"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("api.collection: %w", err)
	}
	cfg := AppConfig{
		APIBaseURL:    strings.TrimSpace(configViper.GetString("api.base_url")),
		Collection:    collection,
		UserID:        strings.TrimSpace(configViper.GetString("user.id")),
		Username:      strings.TrimSpace(configViper.GetString("user.username")),
		AvatarURL:     strings.TrimSpace(configViper.GetString("user.avatar_url")),
		LogLevel:      configViper.GetString("log.level"),
		LogEncoding:   strings.ToLower(strings.TrimSpace(configViper.GetString("log.encoding"))),
		ShareBaseURL:  strings.TrimSpace(configViper.GetString("share.base_url")),
		ServerAddress: strings.TrimSpace(configViper.GetString("server.address")),
		DatabasePath:  strings.TrimSpace(configViper.GetString("server.database_path")),
		PublicBaseURL: strings.TrimSpace(configViper.GetString("server.public_base_url")),
	}
	if cfg.ShareBaseURL == "" {
		cfg.ShareBaseURL = cfg.APIBaseURL
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// RequireUser reports whether the session identity needed by client commands is configured.
func (c AppConfig) RequireUser() error {
	if c.UserID == "" {
		return fmt.Errorf("user.id is required")
	}
	if _, err := adventures.NormalizeUserID(c.UserID); err != nil {
		return fmt.Errorf("user.id: %w", err)
	}
	return nil
}

// User returns the configured session identity.
func (c AppConfig) User() adventures.User {
	username := c.Username
	if username == "" {
		username = c.UserID
	}
	return adventures.User{ID: c.UserID, Username: username, ProfilePicture: c.AvatarURL}
}

func (c AppConfig) validate() error {
	if err := validateURL("api.base_url", c.APIBaseURL); err != nil {
		return err
	}
	if err := validateURL("share.base_url", c.ShareBaseURL); err != nil {
		return err
	}
	switch c.LogEncoding {
	case "json", "console":
	default:
		return fmt.Errorf("log.encoding must be json or console")
	}
	if c.ServerAddress == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("server.database_path is required")
	}
	if c.PublicBaseURL != "" {
		if err := validateURL("server.public_base_url", c.PublicBaseURL); err != nil {
			return err
		}
	}
	return nil
}

func validateURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", key)
	}
	return nil
}
