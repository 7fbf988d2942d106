package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
)

func TestLoadAppliesDefaults(testContext *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	if cfg.Collection != adventures.CollectionAdventures {
		testContext.Fatalf("expected adventures collection, got %q", cfg.Collection)
	}
	if cfg.ShareBaseURL != cfg.APIBaseURL {
		testContext.Fatalf("expected share base url to fall back to the api base url")
	}
	if err := cfg.RequireUser(); err == nil {
		testContext.Fatalf("expected missing user id to be reported")
	}
}

func TestLoadReadsEnvironment(testContext *testing.T) {
	testContext.Setenv("BASECAMP_API_COLLECTION", "catches")
	testContext.Setenv("BASECAMP_USER_ID", "user-1")
	testContext.Setenv("BASECAMP_LOG_ENCODING", "JSON")

	cfg, err := Load(NewViper())
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	if cfg.Collection != adventures.CollectionCatches || cfg.LogEncoding != "json" {
		testContext.Fatalf("unexpected config %+v", cfg)
	}
	if err := cfg.RequireUser(); err != nil {
		testContext.Fatalf("unexpected user error: %v", err)
	}
	if user := cfg.User(); user.Username != "user-1" {
		testContext.Fatalf("expected username to fall back to the id, got %q", user.Username)
	}
}

func TestLoadRejectsInvalidValues(testContext *testing.T) {
	cases := map[string]string{
		"api.collection": "BASECAMP_API_COLLECTION=posts",
		"api.base_url":   "BASECAMP_API_BASE_URL=not a url",
		"log.encoding":   "BASECAMP_LOG_ENCODING=xml",
	}
	for key, assignment := range cases {
		testContext.Run(key, func(subTest *testing.T) {
			name, value, _ := strings.Cut(assignment, "=")
			subTest.Setenv(name, value)
			if _, err := Load(NewViper()); err == nil || !strings.Contains(err.Error(), key) {
				subTest.Fatalf("expected %s error, got %v", key, err)
			}
		})
	}
}

func TestLoadDotEnvToleratesMissingFile(testContext *testing.T) {
	if err := LoadDotEnv(filepath.Join(testContext.TempDir(), "missing.env")); err != nil {
		testContext.Fatalf("missing file must be ignored: %v", err)
	}

	path := filepath.Join(testContext.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BASECAMP_USER_USERNAME=Ana\n"), 0o600); err != nil {
		testContext.Fatalf("failed to write env file: %v", err)
	}
	testContext.Setenv("BASECAMP_USER_USERNAME", "")
	os.Unsetenv("BASECAMP_USER_USERNAME")
	if err := LoadDotEnv(path); err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("BASECAMP_USER_USERNAME"); got != "Ana" {
		testContext.Fatalf("expected Ana from .env, got %q", got)
	}
}
