package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
	"github.com/MarcoPoloResearchLab/basecamp/internal/images"
)

var errRemoteUnavailable = errors.New("remote unavailable")

// fakeRemote is an in-memory collection. hook, when set, runs before every call
// outside the lock so tests can hold a request in flight.
type fakeRemote struct {
	mu        sync.Mutex
	entities  []adventures.Adventure
	calls     []string
	failures  map[string]error
	nextID    int
	uploadURL string
	hook      func(operation string)
}

func newFakeRemote(entities ...adventures.Adventure) *fakeRemote {
	return &fakeRemote{
		entities:  entities,
		failures:  make(map[string]error),
		uploadURL: "https://cdn.example.com/uploads/1.jpg",
	}
}

func (f *fakeRemote) begin(operation string) error {
	f.mu.Lock()
	f.calls = append(f.calls, operation)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(operation)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[operation]
}

func (f *fakeRemote) fail(operation string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, operation)
		return
	}
	f.failures[operation] = err
}

func (f *fakeRemote) setHook(hook func(operation string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

func (f *fakeRemote) recordedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) entity(id string) (adventures.Adventure, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	index := indexOf(f.entities, id)
	if index < 0 {
		return adventures.Adventure{}, false
	}
	return f.entities[index], true
}

func (f *fakeRemote) List(ctx context.Context) ([]adventures.Adventure, error) {
	if err := f.begin("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]adventures.Adventure(nil), f.entities...), nil
}

func (f *fakeRemote) Create(ctx context.Context, draft adventures.Adventure) (adventures.Adventure, error) {
	if err := f.begin("create"); err != nil {
		return adventures.Adventure{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	created := draft
	created.ID = fmt.Sprintf("server-%d", f.nextID)
	created.CreatedAt = time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	created.UpdatedAt = created.CreatedAt
	f.entities = appendEntity(f.entities, created)
	return created, nil
}

func (f *fakeRemote) Update(ctx context.Context, id string, patch adventures.Patch) (adventures.Adventure, error) {
	if err := f.begin("update"); err != nil {
		return adventures.Adventure{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	index := indexOf(f.entities, id)
	if index < 0 {
		return adventures.Adventure{}, ErrEntityNotFound
	}
	updated := f.entities[index]
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.ImageURL != nil {
		updated.ImageURL = *patch.ImageURL
	}
	if patch.Details != nil {
		updated.Details = patch.Details
	}
	updated.UpdatedAt = updated.UpdatedAt.Add(time.Hour)
	f.entities = replaceEntity(f.entities, id, func(adventures.Adventure) adventures.Adventure { return updated })
	return updated, nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	if err := f.begin("delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities = removeEntity(f.entities, id)
	return nil
}

func (f *fakeRemote) Like(ctx context.Context, id, userID string) error {
	if err := f.begin("like"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities = replaceEntity(f.entities, id, func(entity adventures.Adventure) adventures.Adventure {
		return entity.WithLike(userID)
	})
	return nil
}

func (f *fakeRemote) Unlike(ctx context.Context, id, userID string) error {
	if err := f.begin("unlike"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities = replaceEntity(f.entities, id, func(entity adventures.Adventure) adventures.Adventure {
		return entity.WithoutLike(userID)
	})
	return nil
}

func (f *fakeRemote) AddComment(ctx context.Context, id string, draft adventures.CommentDraft) (adventures.Comment, error) {
	if err := f.begin("comment"); err != nil {
		return adventures.Comment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	comment := adventures.Comment{
		ID:        fmt.Sprintf("comment-%d", f.nextID),
		UserID:    draft.UserID,
		Text:      draft.Text,
		CreatedAt: time.Date(2024, time.May, 2, 8, 0, 0, 0, time.UTC),
	}
	f.entities = replaceEntity(f.entities, id, func(entity adventures.Adventure) adventures.Adventure {
		return entity.WithComment(comment)
	})
	return comment, nil
}

func (f *fakeRemote) UploadImage(ctx context.Context, file images.File) (string, error) {
	if err := f.begin("upload"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploadURL, nil
}
