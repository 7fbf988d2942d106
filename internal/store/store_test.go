package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
	"github.com/MarcoPoloResearchLab/basecamp/internal/images"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fishingEntity(id string, likes ...string) adventures.Adventure {
	return adventures.Adventure{
		ID:       id,
		UserID:   "owner",
		Date:     adventures.NewDate(2024, time.May, 1),
		Location: adventures.Location{Name: "Lake X"},
		Details: adventures.FishingDetails{
			Species: "Bass",
			Size:    adventures.Measurement{Value: 4.5, Unit: adventures.UnitKilograms},
			Length:  adventures.Measurement{Value: 52, Unit: adventures.UnitCentimeters},
			Method:  adventures.FishingMethod{Type: adventures.FishingSpinning},
		},
		Likes:    append([]string{}, likes...),
		Comments: []adventures.Comment{},
	}
}

func newTestStore(t *testing.T, remote *fakeRemote, collection adventures.Collection) *Store {
	t.Helper()
	store, err := New(Config{Remote: remote, Collection: collection})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store
}

func mustFetch(t *testing.T, store *Store) {
	t.Helper()
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
}

func TestNewRequiresRemote(testContext *testing.T) {
	_, err := New(Config{})
	var operationErr *OperationError
	if !errors.As(err, &operationErr) || operationErr.Code() != "store.new.missing_remote" {
		testContext.Fatalf("expected missing remote error, got %v", err)
	}
}

func TestFetchAllIsIdempotentAndKeepsServerOrder(testContext *testing.T) {
	remote := newFakeRemote(fishingEntity("c"), fishingEntity("a"), fishingEntity("b"))
	store := newTestStore(testContext, remote, adventures.CollectionAdventures)

	mustFetch(testContext, store)
	first := store.Snapshot()
	mustFetch(testContext, store)
	second := store.Snapshot()

	if diff := cmp.Diff(first, second); diff != "" {
		testContext.Fatalf("fetch is not idempotent (-first +second):\n%s", diff)
	}
	ids := []string{}
	for _, entity := range second.Entities {
		ids = append(ids, entity.ID)
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, ids); diff != "" {
		testContext.Fatalf("server order not preserved (-want +got):\n%s", diff)
	}
	if second.IsLoading || second.Error != "" {
		testContext.Fatalf("unexpected flags %+v", second)
	}
}

func TestFetchAllFailureKeepsPreviousCollection(testContext *testing.T) {
	remote := newFakeRemote(fishingEntity("a"))
	store := newTestStore(testContext, remote, adventures.CollectionAdventures)
	mustFetch(testContext, store)

	remote.fail("list", errRemoteUnavailable)
	err := store.FetchAll(context.Background())
	if !errors.Is(err, errRemoteUnavailable) {
		testContext.Fatalf("expected remote error, got %v", err)
	}
	state := store.Snapshot()
	if state.Error != "Failed to fetch adventures" || state.IsLoading {
		testContext.Fatalf("unexpected state after failed fetch: %+v", state)
	}
	if len(state.Entities) != 1 || state.Entities[0].ID != "a" {
		testContext.Fatalf("previous collection must survive a failed fetch: %+v", state.Entities)
	}
}

func TestCreateUploadsImageBeforeSubmitting(testContext *testing.T) {
	remote := newFakeRemote()
	store := newTestStore(testContext, remote, adventures.CollectionCatches)
	mustFetch(testContext, store)

	draft := fishingEntity("")
	image := &images.File{Name: "bass.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
	created, err := store.Create(context.Background(), draft, image)
	if err != nil {
		testContext.Fatalf("create failed: %v", err)
	}

	if diff := cmp.Diff([]string{"list", "upload", "create"}, remote.recordedCalls()); diff != "" {
		testContext.Fatalf("unexpected call order (-want +got):\n%s", diff)
	}
	entities := store.Snapshot().Entities
	if len(entities) != 1 {
		testContext.Fatalf("expected exactly one new entity, got %d", len(entities))
	}
	if entities[0].ImageURL != remote.uploadURL || created.ImageURL != remote.uploadURL {
		testContext.Fatalf("expected uploaded url to be embedded, got %q", entities[0].ImageURL)
	}
	if entities[0].ID == "" || entities[0].CreatedAt.IsZero() {
		testContext.Fatalf("expected server-assigned id and timestamps, got %+v", entities[0])
	}
}

func TestCreateThenDeleteRestoresCollection(testContext *testing.T) {
	remote := newFakeRemote(fishingEntity("a"), fishingEntity("b"))
	store := newTestStore(testContext, remote, adventures.CollectionAdventures)
	mustFetch(testContext, store)
	before := store.Snapshot().Entities

	created, err := store.Create(context.Background(), fishingEntity(""), nil)
	if err != nil {
		testContext.Fatalf("create failed: %v", err)
	}
	if got := store.Snapshot().Entities; got[len(got)-1].ID != created.ID {
		testContext.Fatalf("created entity must be appended last")
	}
	if err := store.Delete(context.Background(), created.ID); err != nil {
		testContext.Fatalf("delete failed: %v", err)
	}
	if diff := cmp.Diff(before, store.Snapshot().Entities); diff != "" {
		testContext.Fatalf("collection not restored (-want +got):\n%s", diff)
	}
}

func TestCreateFailuresAddNothing(testContext *testing.T) {
	remote := newFakeRemote()
	store := newTestStore(testContext, remote, adventures.CollectionCatches)

	remote.fail("upload", errRemoteUnavailable)
	image := &images.File{Name: "bass.jpg", ContentType: "image/jpeg", Data: []byte{1}}
	_, err := store.Create(context.Background(), fishingEntity(""), image)
	if !errors.Is(err, ErrUploadFailed) {
		testContext.Fatalf("expected upload failure, got %v", err)
	}
	for _, call := range remote.recordedCalls() {
		if call == "create" {
			testContext.Fatalf("create must not be issued after a failed upload")
		}
	}
	state := store.Snapshot()
	if state.Error != "Failed to add catch" || len(state.Entities) != 0 || state.IsLoading {
		testContext.Fatalf("unexpected state %+v", state)
	}

	remote.fail("upload", nil)
	remote.fail("create", errRemoteUnavailable)
	if _, err := store.Create(context.Background(), fishingEntity(""), nil); err == nil {
		testContext.Fatalf("expected create failure")
	}
	if len(store.Snapshot().Entities) != 0 {
		testContext.Fatalf("no placeholder may be inserted on failure")
	}
}

func TestUpdateReplacesEntityInPlace(testContext *testing.T) {
	remote := newFakeRemote(fishingEntity("a"), fishingEntity("b"), fishingEntity("c"))
	store := newTestStore(testContext, remote, adventures.CollectionAdventures)
	mustFetch(testContext, store)

	description := "Released after photo"
	image := &images.File{Name: "b.png", ContentType: "image/png", Data: []byte{1}}
	updated, err := store.Update(context.Background(), "b", adventures.Patch{Description: &description}, image)
	if err != nil {
		testContext.Fatalf("update failed: %v", err)
	}
	entities := store.Snapshot().Entities
	if entities[1].ID != "b" || entities[1].Description != description || entities[1].ImageURL != remote.uploadURL {
		testContext.Fatalf("entity not replaced in place: %+v", entities[1])
	}
	if diff := cmp.Diff(updated, entities[1]); diff != "" {
		testContext.Fatalf("local entity must equal the server response (-want +got):\n%s", diff)
	}

	remote.fail("update", errRemoteUnavailable)
	other := "ignored"
	if _, err := store.Update(context.Background(), "b", adventures.Patch{Description: &other}, nil); err == nil {
		testContext.Fatalf("expected update failure")
	}
	state := store.Snapshot()
	if state.Entities[1].Description != description || state.Error != "Failed to update adventure" {
		testContext.Fatalf("failed update must leave the entity unchanged: %+v", state)
	}
}

func TestDeleteFailureKeepsEntity(testContext *testing.T) {
	remote := newFakeRemote(fishingEntity("a"))
	store := newTestStore(testContext, remote, adventures.CollectionAdventures)
	mustFetch(testContext, store)

	remote.fail("delete", errRemoteUnavailable)
	if err := store.Delete(context.Background(), "a"); err == nil {
		testContext.Fatalf("expected delete failure")
	}
	if _, ok := store.Entity("a"); !ok {
		testContext.Fatalf("entity must remain after a failed delete")
	}
	if store.Snapshot().Error != "Failed to delete adventure" {
		testContext.Fatalf("unexpected error %q", store.Snapshot().Error)
	}
}

func TestToggleLikeIsOptimisticAndRevertsOnFailure(testContext *testing.T) {
	remote := newFakeRemote(fishingEntity("a", "user-2"))
	store := newTestStore(testContext, remote, adventures.CollectionAdventures)
	mustFetch(testContext, store)

	started := make(chan struct{})
	release := make(chan struct{})
	remote.setHook(func(operation string) {
		if operation == "like" {
			close(started)
			<-release
		}
	})
	remote.fail("like", errRemoteUnavailable)

	done := make(chan error, 1)
	go func() {
		done <- store.ToggleLike(context.Background(), "a", "user-1")
	}()
	<-started
	if entity, _ := store.Entity("a"); !entity.HasLike("user-1") {
		testContext.Fatalf("like must be applied before the request settles")
	}
	close(release)

	if err := <-done; !errors.Is(err, errRemoteUnavailable) {
		testContext.Fatalf("expected toggle failure, got %v", err)
	}
	entity, _ := store.Entity("a")
	if diff := cmp.Diff([]string{"user-2"}, entity.Likes); diff != "" {
		testContext.Fatalf("failed like must be reverted (-want +got):\n%s", diff)
	}
	if store.Snapshot().Error != "Failed to toggle like" {
		testContext.Fatalf("unexpected error %q", store.Snapshot().Error)
	}
}

func TestToggleLikePairRestoresOriginalSet(testContext *testing.T) {
	remote := newFakeRemote(fishingEntity("a", "user-2"))
	store := newTestStore(testContext, remote, adventures.CollectionAdventures)
	mustFetch(testContext, store)
	original, _ := store.Entity("a")

	for round := 0; round < 3; round++ {
		if err := store.ToggleLike(context.Background(), "a", "user-1"); err != nil {
			testContext.Fatalf("like failed: %v", err)
		}
		if entity, _ := store.Entity("a"); len(entity.Likes) != 2 {
			testContext.Fatalf("expected exactly one added identity, got %v", entity.Likes)
		}
		if err := store.ToggleLike(context.Background(), "a", "user-1"); err != nil {
			testContext.Fatalf("unlike failed: %v", err)
		}
	}
	entity, _ := store.Entity("a")
	if diff := cmp.Diff(original.Likes, entity.Likes); diff != "" {
		testContext.Fatalf("like/unlike pairs must restore the set (-want +got):\n%s", diff)
	}
	if err := store.ToggleLike(context.Background(), "missing", "user-1"); !errors.Is(err, ErrEntityNotFound) {
		testContext.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestToggleLikeRejectsBlankUser(testContext *testing.T) {
	remote := newFakeRemote(fishingEntity("a", "user-2"))
	store := newTestStore(testContext, remote, adventures.CollectionAdventures)
	mustFetch(testContext, store)

	for _, userID := range []string{"", "   "} {
		if err := store.ToggleLike(context.Background(), "a", userID); !errors.Is(err, adventures.ErrInvalidUserID) {
			testContext.Fatalf("user %q: expected ErrInvalidUserID, got %v", userID, err)
		}
	}
	entity, _ := store.Entity("a")
	if diff := cmp.Diff([]string{"user-2"}, entity.Likes); diff != "" {
		testContext.Fatalf("blank user must not touch the like set (-want +got):\n%s", diff)
	}
	for _, call := range remote.recordedCalls() {
		if call == "like" || call == "unlike" {
			testContext.Fatalf("blank user must not reach the remote, saw %q", call)
		}
	}
	if got := store.Snapshot().Error; got != "" {
		testContext.Fatalf("argument errors must not set the shared error, got %q", got)
	}
}

func TestConcurrentTogglesResolveToParity(testContext *testing.T) {
	for _, toggles := range []int{2, 5} {
		remote := newFakeRemote(fishingEntity("a"))
		store := newTestStore(testContext, remote, adventures.CollectionAdventures)
		mustFetch(testContext, store)

		release := make(chan struct{})
		remote.setHook(func(operation string) {
			if operation == "like" || operation == "unlike" {
				<-release
			}
		})

		group, ctx := errgroup.WithContext(context.Background())
		for index := 0; index < toggles; index++ {
			group.Go(func() error {
				return store.ToggleLike(ctx, "a", "user-1")
			})
		}
		close(release)
		if err := group.Wait(); err != nil {
			testContext.Fatalf("toggle failed: %v", err)
		}

		entity, _ := store.Entity("a")
		wantLiked := toggles%2 == 1
		if entity.HasLike("user-1") != wantLiked {
			testContext.Fatalf("%d toggles: expected liked=%v, got %v", toggles, wantLiked, entity.Likes)
		}
		if len(entity.Likes) > 1 {
			testContext.Fatalf("%d toggles: duplicate identity in %v", toggles, entity.Likes)
		}
	}
}

func TestAddCommentGuardsBlankTextAndAppends(testContext *testing.T) {
	remote := newFakeRemote(fishingEntity("a"))
	store := newTestStore(testContext, remote, adventures.CollectionAdventures)
	mustFetch(testContext, store)

	for _, text := range []string{"", "   "} {
		if _, err := store.AddComment(context.Background(), "a", adventures.CommentDraft{UserID: "user-1", Text: text}); !errors.Is(err, ErrEmptyComment) {
			testContext.Fatalf("expected ErrEmptyComment for %q, got %v", text, err)
		}
	}
	for _, call := range remote.recordedCalls() {
		if call == "comment" {
			testContext.Fatalf("blank comment must not reach the remote")
		}
	}

	for _, text := range []string{"first", "second"} {
		if _, err := store.AddComment(context.Background(), "a", adventures.CommentDraft{UserID: "user-1", Text: text}); err != nil {
			testContext.Fatalf("comment failed: %v", err)
		}
	}
	entity, _ := store.Entity("a")
	if len(entity.Comments) != 2 || entity.Comments[0].Text != "first" || entity.Comments[1].ID == "" {
		testContext.Fatalf("comments must be appended in order with server ids: %+v", entity.Comments)
	}
}

func TestLatestFailureOverwritesSharedError(testContext *testing.T) {
	remote := newFakeRemote(fishingEntity("a"))
	store := newTestStore(testContext, remote, adventures.CollectionAdventures)
	mustFetch(testContext, store)

	remote.fail("delete", errRemoteUnavailable)
	remote.fail("comment", errRemoteUnavailable)
	_ = store.Delete(context.Background(), "a")
	_, _ = store.AddComment(context.Background(), "a", adventures.CommentDraft{UserID: "u", Text: "hi"})
	if got := store.Snapshot().Error; got != "Failed to add comment" {
		testContext.Fatalf("expected the latest failure to win, got %q", got)
	}

	mustFetch(testContext, store)
	if store.Snapshot().Error == "" {
		testContext.Fatalf("success must not clear the shared error")
	}
	store.ClearError()
	if store.Snapshot().Error != "" {
		testContext.Fatalf("expected ClearError to dismiss the error")
	}
}

func TestIsLoadingTracksOverlappingBulkOperations(testContext *testing.T) {
	remote := newFakeRemote(fishingEntity("a"))
	store := newTestStore(testContext, remote, adventures.CollectionAdventures)

	started := make(chan struct{})
	release := make(chan struct{})
	remote.setHook(func(operation string) {
		if operation == "delete" {
			close(started)
			<-release
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- store.Delete(context.Background(), "a")
	}()
	<-started
	mustFetch(testContext, store)
	if !store.Snapshot().IsLoading {
		testContext.Fatalf("loading must stay set while a bulk operation is in flight")
	}
	if _, err := store.AddComment(context.Background(), "a", adventures.CommentDraft{UserID: "u", Text: "hi"}); err != nil {
		testContext.Fatalf("comment failed: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		testContext.Fatalf("delete failed: %v", err)
	}
	if store.Snapshot().IsLoading {
		testContext.Fatalf("loading must clear once every bulk operation settled")
	}
}

func TestSubscribeStreamsSnapshotsUntilCancelled(testContext *testing.T) {
	remote := newFakeRemote(fishingEntity("a"))
	store := newTestStore(testContext, remote, adventures.CollectionAdventures)

	ctx, cancel := context.WithCancel(context.Background())
	stream, _ := store.Subscribe(ctx)

	initial := <-stream
	if len(initial.Entities) != 0 {
		testContext.Fatalf("expected the empty initial state, got %+v", initial)
	}
	mustFetch(testContext, store)
	loading := <-stream
	if !loading.IsLoading {
		testContext.Fatalf("expected a loading snapshot, got %+v", loading)
	}
	loaded := <-stream
	if loaded.IsLoading || len(loaded.Entities) != 1 {
		testContext.Fatalf("expected the loaded snapshot, got %+v", loaded)
	}

	cancel()
	for range stream {
	}

	_, stop := store.Subscribe(context.Background())
	stop()
	stop()
}
