// Package feed renders the store's collection as a terminal feed and forwards
// card intents (like, comment, share, edit, delete) to the store.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
	"github.com/MarcoPoloResearchLab/basecamp/internal/drafts"
	"github.com/MarcoPoloResearchLab/basecamp/internal/store"
	"github.com/MarcoPoloResearchLab/basecamp/internal/users"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

var (
	// ErrUnknownEntity indicates an intent aimed at an entity the store does not hold.
	ErrUnknownEntity = errors.New("feed: unknown entity")

	errMissingStore        = errors.New("feed: store is required")
	errMissingCurrentUser  = errors.New("feed: current user is required")
	errMissingShareBaseURL = errors.New("feed: share base url is not configured")
)

// Store is the part of the entity store the feed reads and drives.
type Store interface {
	Collection() adventures.Collection
	Snapshot() store.State
	Entity(id string) (adventures.Adventure, bool)
	ToggleLike(ctx context.Context, entityID, userID string) error
	AddComment(ctx context.Context, entityID string, draft adventures.CommentDraft) (adventures.Comment, error)
	Delete(ctx context.Context, id string) error
}

// Config wires a Feed.
type Config struct {
	Store        Store
	Directory    *users.Directory
	CurrentUser  adventures.User
	ShareBaseURL string
	Theme        *Theme
	Width        int
	Logger       *zap.Logger
}

// Feed renders cards and keeps render-local state: which comment panels are
// disclosed. The store stays the source of truth for entities.
type Feed struct {
	store        Store
	directory    *users.Directory
	currentUser  adventures.User
	shareBaseURL string
	theme        Theme
	width        int
	logger       *zap.Logger

	mu       sync.Mutex
	expanded map[string]bool
}

func New(cfg Config) (*Feed, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if strings.TrimSpace(cfg.CurrentUser.ID) == "" {
		return nil, errMissingCurrentUser
	}
	directory := cfg.Directory
	if directory == nil {
		directory = users.NewDirectory(users.DirectoryConfig{Logger: cfg.Logger})
	}
	directory.Register(cfg.CurrentUser)
	theme := DefaultTheme()
	if cfg.Theme != nil {
		theme = *cfg.Theme
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		store:        cfg.Store,
		directory:    directory,
		currentUser:  cfg.CurrentUser,
		shareBaseURL: strings.TrimSpace(cfg.ShareBaseURL),
		theme:        theme,
		width:        cfg.Width,
		logger:       logger,
		expanded:     make(map[string]bool),
	}, nil
}

// Header renders the title bar with the add action.
func (f *Feed) Header() string {
	collection := f.store.Collection()
	noun := FormatOption(collection.Singular())
	title := f.theme.Header.Render("My " + FormatOption(collection.String()))
	action := f.theme.Action.Render("[+] Add " + noun)
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "   ", action)
}

// Render draws the header, the shared status line and one card per entity in store order.
func (f *Feed) Render(ctx context.Context) string {
	state := f.store.Snapshot()
	sections := []string{f.Header()}
	if state.IsLoading {
		sections = append(sections, f.theme.Muted.Render("Loading..."))
	}
	if state.Error != "" {
		sections = append(sections, f.theme.Error.Render(state.Error))
	}
	if len(state.Entities) == 0 && !state.IsLoading {
		sections = append(sections, f.theme.Muted.Render("Nothing here yet."))
	}
	for _, entity := range state.Entities {
		sections = append(sections, f.RenderCard(ctx, entity))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// RenderCard draws a single entity.
func (f *Feed) RenderCard(ctx context.Context, entity adventures.Adventure) string {
	author := f.directory.Resolve(ctx, entity.UserID)

	headline := f.theme.Title.Render(Title(entity))
	if date := FormatDate(entity.Date); date != "" {
		headline = lipgloss.JoinHorizontal(lipgloss.Top, headline, "  ", f.theme.Muted.Render(date))
	}
	lines := []string{
		headline,
		f.theme.Muted.Render(fmt.Sprintf("%s · %s", FormatOption(entity.Kind().String()), author.Username)),
		"@ " + entity.Location.Name,
	}
	if entity.ImageURL != "" {
		lines = append(lines, f.theme.Muted.Render("image: "+entity.ImageURL))
	}
	lines = append(lines, strings.Join(Facts(entity), "  |  "))
	if entity.Description != "" {
		lines = append(lines, entity.Description)
	}
	lines = append(lines, f.actions(entity))

	if f.isExpanded(entity.ID) {
		lines = append(lines, f.comments(ctx, entity)...)
	}

	card := f.theme.Card
	if f.width > 0 {
		card = card.Width(f.width)
	}
	return card.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (f *Feed) actions(entity adventures.Adventure) string {
	like := "♡ " + strconv.Itoa(len(entity.Likes))
	if entity.HasLike(f.currentUser.ID) {
		like = f.theme.Liked.Render("♥ " + strconv.Itoa(len(entity.Likes)))
	}
	comments := fmt.Sprintf("comments %d", len(entity.Comments))
	return strings.Join([]string{like, comments, "share"}, "   ")
}

func (f *Feed) comments(ctx context.Context, entity adventures.Adventure) []string {
	if len(entity.Comments) == 0 {
		return []string{f.theme.Comment.Render(f.theme.Muted.Render("No comments yet."))}
	}
	lines := make([]string, 0, len(entity.Comments))
	for _, comment := range entity.Comments {
		author := f.directory.Resolve(ctx, comment.UserID)
		meta := f.theme.Muted.Render(author.Username + " · " + FormatTimestamp(comment.CreatedAt))
		lines = append(lines, f.theme.Comment.Render(comment.Text+"\n"+meta))
	}
	return lines
}

// ToggleComments discloses or hides an entity's comment panel and reports the new state.
func (f *Feed) ToggleComments(entityID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expanded[entityID] = !f.expanded[entityID]
	return f.expanded[entityID]
}

// ExpandAll discloses every comment panel.
func (f *Feed) ExpandAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entity := range f.store.Snapshot().Entities {
		f.expanded[entity.ID] = true
	}
}

func (f *Feed) isExpanded(entityID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expanded[entityID]
}

// Like toggles the current user's like on the entity.
func (f *Feed) Like(ctx context.Context, entityID string) error {
	return f.store.ToggleLike(ctx, entityID, f.currentUser.ID)
}

// Comment posts text as the current user. Blank text never reaches the store.
func (f *Feed) Comment(ctx context.Context, entityID, text string) error {
	if strings.TrimSpace(text) == "" {
		return store.ErrEmptyComment
	}
	_, err := f.store.AddComment(ctx, entityID, adventures.CommentDraft{UserID: f.currentUser.ID, Text: text})
	return err
}

// Delete removes the entity through the store.
func (f *Feed) Delete(ctx context.Context, entityID string) error {
	return f.store.Delete(ctx, entityID)
}

// Edit returns a draft pre-filled from the entity.
func (f *Feed) Edit(entityID string) (*drafts.Draft, error) {
	entity, ok := f.store.Entity(entityID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
	}
	return drafts.FromAdventure(entity)
}

// Share returns a link to the entity under the configured share base URL.
func (f *Feed) Share(entityID string) (string, error) {
	if _, ok := f.store.Entity(entityID); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
	}
	if f.shareBaseURL == "" {
		return "", errMissingShareBaseURL
	}
	link, err := url.JoinPath(f.shareBaseURL, f.store.Collection().String(), entityID)
	if err != nil {
		return "", err
	}
	f.logger.Debug("share link created", zap.String("entity_id", entityID), zap.String("link", link))
	return link, nil
}
