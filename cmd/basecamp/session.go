package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/basecamp/internal/apiclient"
	"github.com/MarcoPoloResearchLab/basecamp/internal/config"
	"github.com/MarcoPoloResearchLab/basecamp/internal/drafts"
	"github.com/MarcoPoloResearchLab/basecamp/internal/feed"
	"github.com/MarcoPoloResearchLab/basecamp/internal/images"
	"github.com/MarcoPoloResearchLab/basecamp/internal/logging"
	"github.com/MarcoPoloResearchLab/basecamp/internal/store"
	"github.com/MarcoPoloResearchLab/basecamp/internal/users"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// session is the client-side object graph shared by the entity commands.
type session struct {
	config config.AppConfig
	logger *zap.Logger
	client *apiclient.Client
	store  *store.Store
	feed   *feed.Feed
}

func loadRuntime() (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return appConfig, logger, nil
}

func openSession(width int) (*session, error) {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return nil, err
	}
	if err := appConfig.RequireUser(); err != nil {
		return nil, err
	}
	user := appConfig.User()

	client, err := apiclient.New(apiclient.Config{
		BaseURL:    appConfig.APIBaseURL,
		Collection: appConfig.Collection,
		UserID:     user.ID,
		Username:   user.Username,
		AvatarURL:  user.ProfilePicture,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	entityStore, err := store.New(store.Config{
		Remote:     client,
		Collection: appConfig.Collection,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	entityFeed, err := feed.New(feed.Config{
		Store:        entityStore,
		Directory:    users.NewDirectory(users.DirectoryConfig{Fetcher: client, Logger: logger}),
		CurrentUser:  user,
		ShareBaseURL: appConfig.ShareBaseURL,
		Width:        width,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return &session{
		config: appConfig,
		logger: logger,
		client: client,
		store:  entityStore,
		feed:   entityFeed,
	}, nil
}

func (s *session) close() {
	_ = s.logger.Sync()
}

// applyAssignments sets each "path=value" pair on the draft in order.
func applyAssignments(draft *drafts.Draft, assignments []string) error {
	for _, assignment := range assignments {
		path, value, ok := strings.Cut(assignment, "=")
		if !ok || strings.TrimSpace(path) == "" {
			return fmt.Errorf("--set expects path=value, got %q", assignment)
		}
		if err := draft.Set(strings.TrimSpace(path), value); err != nil {
			return err
		}
	}
	return nil
}

// selectImage loads path into a selector. An empty path leaves the selector empty.
func selectImage(selector *images.Selector, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = selector.Select(filepath.Base(path), file)
	return err
}
