package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
	"gorm.io/gorm"
)

// ErrUnknownUser indicates that no profile exists for the requested id.
var ErrUnknownUser = errors.New("users: unknown user")

// ServiceConfig describes the dependencies required for profile storage.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service records the profiles callers present and serves them back by id.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: sync.Map{},
	}, nil
}

// Touch records user, creating the profile on first sight and refreshing
// changed display fields afterwards. Blank display fields never erase stored ones.
func (s *Service) Touch(ctx context.Context, user adventures.User) error {
	userID, err := adventures.NormalizeUserID(user.ID)
	if err != nil {
		return err
	}
	username := normalize(user.Username)
	avatarURL := normalize(user.ProfilePicture)

	if cached, ok := s.cache.Load(userID); ok {
		if profile, ok := cached.(Profile); ok && unchanged(profile, username, avatarURL) {
			return nil
		}
	}

	var profile Profile
	err = s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = Profile{
			UserID:     userID,
			Username:   username,
			AvatarURL:  avatarURL,
			LastSeenAt: s.now(),
		}
		if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else {
		updates := map[string]interface{}{}
		if username != "" && username != profile.Username {
			updates["username"] = username
			profile.Username = username
		}
		if avatarURL != "" && avatarURL != profile.AvatarURL {
			updates["avatar_url"] = avatarURL
			profile.AvatarURL = avatarURL
		}
		updates["last_seen_at"] = s.now()
		if err := s.db.WithContext(ctx).Model(&Profile{}).
			Where("user_id = ?", userID).
			Updates(updates).
			Error; err != nil {
			return err
		}
	}

	s.cache.Store(userID, profile)
	return nil
}

// Lookup returns the stored profile for id.
func (s *Service) Lookup(ctx context.Context, id string) (adventures.User, error) {
	userID, err := adventures.NormalizeUserID(id)
	if err != nil {
		return adventures.User{}, err
	}
	if cached, ok := s.cache.Load(userID); ok {
		if profile, ok := cached.(Profile); ok {
			return profile.User(), nil
		}
	}
	var profile Profile
	err = s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return adventures.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return adventures.User{}, err
	}
	s.cache.Store(userID, profile)
	return profile.User(), nil
}

func unchanged(profile Profile, username, avatarURL string) bool {
	return (username == "" || username == profile.Username) && (avatarURL == "" || avatarURL == profile.AvatarURL)
}
