// Package store holds the authoritative in-memory entity collection for a
// session and applies the mutation protocol against a remote collection.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
	"github.com/MarcoPoloResearchLab/basecamp/internal/images"
	"go.uber.org/zap"
)

var (
	// ErrEntityNotFound indicates that no local entity carries the requested id.
	ErrEntityNotFound = errors.New("store: entity not found")
	// ErrEmptyComment indicates that comment text was blank; no request is issued.
	ErrEmptyComment = errors.New("store: comment text is empty")
	// ErrUploadFailed is wrapped by every image upload failure.
	ErrUploadFailed = errors.New("store: failed to upload image")

	errMissingRemote = errors.New("remote is required")
	noOpLogger       = zap.NewNop()
)

const (
	opNew         = "store.new"
	opFetchAll    = "store.fetch_all"
	opCreate      = "store.create"
	opUpdate      = "store.update"
	opDelete      = "store.delete"
	opToggleLike  = "store.toggle_like"
	opAddComment  = "store.add_comment"
	opUploadImage = "store.upload_image"

	reasonRemoteFailed = "remote_failed"
	reasonUploadFailed = "upload_failed"
)

// Remote is the backend collection the store proxies.
type Remote interface {
	List(ctx context.Context) ([]adventures.Adventure, error)
	Create(ctx context.Context, draft adventures.Adventure) (adventures.Adventure, error)
	Update(ctx context.Context, id string, patch adventures.Patch) (adventures.Adventure, error)
	Delete(ctx context.Context, id string) error
	Like(ctx context.Context, id, userID string) error
	Unlike(ctx context.Context, id, userID string) error
	AddComment(ctx context.Context, id string, draft adventures.CommentDraft) (adventures.Comment, error)
	UploadImage(ctx context.Context, file images.File) (string, error)
}

// OperationError pairs the shared, user-facing failure message with its cause.
type OperationError struct {
	code    string
	message string
	err     error
}

func (e *OperationError) Error() string {
	if e.err == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.err)
}

func (e *OperationError) Unwrap() error {
	return e.err
}

// Code returns "<operation>.<reason>".
func (e *OperationError) Code() string {
	return e.code
}

// Message returns the text recorded in State.Error.
func (e *OperationError) Message() string {
	return e.message
}

func newOperationError(operation, reason, message string, cause error) *OperationError {
	return &OperationError{code: operation + "." + reason, message: message, err: cause}
}

// State is an immutable snapshot of the store.
type State struct {
	Entities  []adventures.Adventure
	IsLoading bool
	Error     string
}

// Config describes the store's collaborators.
type Config struct {
	Remote     Remote
	Collection adventures.Collection
	Logger     *zap.Logger
	// SubscriberBuffer bounds each subscriber's channel. Defaults to 16.
	SubscriberBuffer int
}

// Store is safe for concurrent use. Every mutation computes a new entity slice
// and installs it whole, so snapshots never observe a partial update.
type Store struct {
	remote     Remote
	collection adventures.Collection
	logger     *zap.Logger

	mu          sync.Mutex
	state       State
	inFlight    int
	subscribers map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	stream chan State
	done   chan struct{}
}

// New constructs an empty store.
func New(cfg Config) (*Store, error) {
	if cfg.Remote == nil {
		return nil, &OperationError{code: opNew + ".missing_remote", message: errMissingRemote.Error(), err: errMissingRemote}
	}
	collection := cfg.Collection
	if collection == "" {
		collection = adventures.CollectionAdventures
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	bufferSize := cfg.SubscriberBuffer
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Store{
		remote:      cfg.Remote,
		collection:  collection,
		logger:      logger,
		state:       State{Entities: []adventures.Adventure{}},
		subscribers: make(map[int64]*subscriber),
		bufferSize:  bufferSize,
	}, nil
}

// Collection reports which remote collection the store mirrors.
func (s *Store) Collection() adventures.Collection {
	return s.collection
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Entity returns the local entity with id.
func (s *Store) Entity(id string) (adventures.Adventure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := indexOf(s.state.Entities, id)
	if index < 0 {
		return adventures.Adventure{}, false
	}
	return s.state.Entities[index], true
}

// ClearError dismisses the shared error message.
func (s *Store) ClearError() {
	s.commit(func(state State) State {
		state.Error = ""
		return state
	})
}

// FetchAll replaces the local collection with the remote one, verbatim and in
// server order. On failure the previous collection is kept.
func (s *Store) FetchAll(ctx context.Context) error {
	s.beginLoading()
	entities, err := s.remote.List(ctx)
	if err != nil {
		return s.failLoading(opFetchAll, reasonRemoteFailed, "Failed to fetch "+s.collection.String(), err)
	}
	if entities == nil {
		entities = []adventures.Adventure{}
	}
	s.endLoading(func(state State) State {
		state.Entities = entities
		return state
	})
	return nil
}

// Create uploads image when present, embeds its URL in the draft and submits
// the draft. The server's entity is appended; nothing is inserted on failure.
func (s *Store) Create(ctx context.Context, draft adventures.Adventure, image *images.File) (adventures.Adventure, error) {
	message := "Failed to add " + s.collection.Singular()
	s.beginLoading()
	if image != nil {
		imageURL, err := s.upload(ctx, *image)
		if err != nil {
			return adventures.Adventure{}, s.failLoading(opCreate, reasonUploadFailed, message, err)
		}
		draft.ImageURL = imageURL
	}
	created, err := s.remote.Create(ctx, draft)
	if err != nil {
		return adventures.Adventure{}, s.failLoading(opCreate, reasonRemoteFailed, message, err)
	}
	s.endLoading(func(state State) State {
		state.Entities = appendEntity(state.Entities, created)
		return state
	})
	return created, nil
}

// Update uploads image when present and submits the patch. The matching entity
// is replaced in place by the server's full entity.
func (s *Store) Update(ctx context.Context, id string, patch adventures.Patch, image *images.File) (adventures.Adventure, error) {
	message := "Failed to update " + s.collection.Singular()
	s.beginLoading()
	if image != nil {
		imageURL, err := s.upload(ctx, *image)
		if err != nil {
			return adventures.Adventure{}, s.failLoading(opUpdate, reasonUploadFailed, message, err)
		}
		patch.ImageURL = &imageURL
	}
	updated, err := s.remote.Update(ctx, id, patch)
	if err != nil {
		return adventures.Adventure{}, s.failLoading(opUpdate, reasonRemoteFailed, message, err)
	}
	s.endLoading(func(state State) State {
		state.Entities = replaceEntity(state.Entities, id, func(adventures.Adventure) adventures.Adventure {
			return updated
		})
		return state
	})
	return updated, nil
}

// Delete removes the entity locally once the server confirms the deletion.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.beginLoading()
	if err := s.remote.Delete(ctx, id); err != nil {
		return s.failLoading(opDelete, reasonRemoteFailed, "Failed to delete "+s.collection.Singular(), err)
	}
	s.endLoading(func(state State) State {
		state.Entities = removeEntity(state.Entities, id)
		return state
	})
	return nil
}

// ToggleLike flips userID's membership in the entity's like set. The local
// change is applied before the request; on failure exactly that membership
// change is reverted.
func (s *Store) ToggleLike(ctx context.Context, entityID, userID string) error {
	userID, err := adventures.NormalizeUserID(userID)
	if err != nil {
		return err
	}
	var found, wasLiked bool
	s.commit(func(state State) State {
		index := indexOf(state.Entities, entityID)
		if index < 0 {
			return state
		}
		found = true
		wasLiked = state.Entities[index].HasLike(userID)
		state.Entities = replaceEntity(state.Entities, entityID, func(entity adventures.Adventure) adventures.Adventure {
			if wasLiked {
				return entity.WithoutLike(userID)
			}
			return entity.WithLike(userID)
		})
		return state
	})
	if !found {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}

	if wasLiked {
		err = s.remote.Unlike(ctx, entityID, userID)
	} else {
		err = s.remote.Like(ctx, entityID, userID)
	}
	if err == nil {
		return nil
	}

	failure := newOperationError(opToggleLike, reasonRemoteFailed, "Failed to toggle like", err)
	s.logError(opToggleLike, reasonRemoteFailed, err, zap.String("entity_id", entityID), zap.String("user_id", userID))
	s.commit(func(state State) State {
		state.Entities = replaceEntity(state.Entities, entityID, func(entity adventures.Adventure) adventures.Adventure {
			if wasLiked {
				return entity.WithLike(userID)
			}
			return entity.WithoutLike(userID)
		})
		state.Error = failure.message
		return state
	})
	return failure
}

// AddComment submits a comment and appends the server's comment to the entity.
// Blank text is rejected without a request.
func (s *Store) AddComment(ctx context.Context, entityID string, draft adventures.CommentDraft) (adventures.Comment, error) {
	if strings.TrimSpace(draft.Text) == "" {
		return adventures.Comment{}, ErrEmptyComment
	}
	comment, err := s.remote.AddComment(ctx, entityID, draft)
	if err != nil {
		failure := newOperationError(opAddComment, reasonRemoteFailed, "Failed to add comment", err)
		s.logError(opAddComment, reasonRemoteFailed, err, zap.String("entity_id", entityID))
		s.commit(func(state State) State {
			state.Error = failure.message
			return state
		})
		return adventures.Comment{}, failure
	}
	s.commit(func(state State) State {
		state.Entities = replaceEntity(state.Entities, entityID, func(entity adventures.Adventure) adventures.Adventure {
			return entity.WithComment(comment)
		})
		return state
	})
	return comment, nil
}

// UploadImage submits file and returns its reference URL. It does not touch State.
func (s *Store) UploadImage(ctx context.Context, file images.File) (string, error) {
	return s.upload(ctx, file)
}

func (s *Store) upload(ctx context.Context, file images.File) (string, error) {
	imageURL, err := s.remote.UploadImage(ctx, file)
	if err != nil {
		s.logError(opUploadImage, reasonUploadFailed, err, zap.String("name", file.Name))
		return "", newOperationError(opUploadImage, reasonUploadFailed, "Failed to upload image", fmt.Errorf("%w: %v", ErrUploadFailed, err))
	}
	return imageURL, nil
}

func (s *Store) beginLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight++
	s.state.IsLoading = true
	s.publishLocked()
}

func (s *Store) endLoading(mutate func(State) State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	next := mutate(s.state)
	next.IsLoading = s.inFlight > 0
	s.state = next
	s.publishLocked()
}

func (s *Store) failLoading(operation, reason, message string, cause error) error {
	s.logError(operation, reason, cause)
	s.endLoading(func(state State) State {
		state.Error = message
		return state
	})
	return newOperationError(operation, reason, message, cause)
}

func (s *Store) commit(mutate func(State) State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = mutate(s.state)
	s.publishLocked()
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("collection", s.collection.String()),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("store operation failed", attrs...)
}

func indexOf(entities []adventures.Adventure, id string) int {
	for index := range entities {
		if entities[index].ID == id {
			return index
		}
	}
	return -1
}

func appendEntity(entities []adventures.Adventure, entity adventures.Adventure) []adventures.Adventure {
	next := make([]adventures.Adventure, 0, len(entities)+1)
	next = append(next, entities...)
	return append(next, entity)
}

func replaceEntity(entities []adventures.Adventure, id string, replace func(adventures.Adventure) adventures.Adventure) []adventures.Adventure {
	if indexOf(entities, id) < 0 {
		return entities
	}
	next := make([]adventures.Adventure, len(entities))
	for index, entity := range entities {
		if entity.ID == id {
			entity = replace(entity)
		}
		next[index] = entity
	}
	return next
}

func removeEntity(entities []adventures.Adventure, id string) []adventures.Adventure {
	next := make([]adventures.Adventure, 0, len(entities))
	for _, entity := range entities {
		if entity.ID != id {
			next = append(next, entity)
		}
	}
	return next
}
