package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrEntityNotFound indicates that no entity with the id exists in the collection.
	ErrEntityNotFound = errors.New("catalog: entity not found")
	// ErrImageNotFound indicates that no uploaded image carries the id.
	ErrImageNotFound = errors.New("catalog: image not found")
	// ErrInvalidEntity indicates a payload the collection cannot store.
	ErrInvalidEntity = errors.New("catalog: invalid entity")
	// ErrEmptyComment indicates a comment without text.
	ErrEmptyComment = errors.New("catalog: comment text is required")
	// ErrInvalidImage indicates an upload without content.
	ErrInvalidImage = errors.New("catalog: invalid image")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "catalog.service.new"
	opList        = "catalog.list"
	opGet         = "catalog.get"
	opCreate      = "catalog.create"
	opUpdate      = "catalog.update"
	opDelete      = "catalog.delete"
	opLike        = "catalog.like"
	opUnlike      = "catalog.unlike"
	opAddComment  = "catalog.add_comment"
	opStoreImage  = "catalog.store_image"
	opLoadImage   = "catalog.image"
	reasonInvalid = "invalid_entity"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

type IDProvider interface {
	NewID() (string, error)
}

// Service stores both collections of the development API. Likes and comments
// are kept in their own tables and joined back onto entities on read.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// List returns the collection in insertion order.
func (s *Service) List(ctx context.Context, collection adventures.Collection) ([]adventures.Adventure, error) {
	var records []Entity
	if err := s.db.WithContext(ctx).
		Where("collection = ?", collection.String()).
		Order("created_at_ns ASC").
		Order("entity_id ASC").
		Find(&records).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("collection", collection.String()))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return s.hydrate(ctx, opList, records)
}

// Get returns one entity with its likes and comments.
func (s *Service) Get(ctx context.Context, collection adventures.Collection, id string) (adventures.Adventure, error) {
	return s.get(ctx, opGet, collection, id)
}

// Create stores draft as a new entity owned by userID. When userID is blank the
// draft's own userId is used. Likes and comments in the draft are ignored.
func (s *Service) Create(ctx context.Context, collection adventures.Collection, userID string, draft adventures.Adventure) (adventures.Adventure, error) {
	if draft.Details == nil || !collection.Supports(draft.Kind()) {
		return adventures.Adventure{}, newServiceError(opCreate, reasonInvalid,
			fmt.Errorf("%w: %s does not accept kind %q", ErrInvalidEntity, collection, draft.Kind()))
	}
	owner := strings.TrimSpace(userID)
	if owner == "" {
		owner = draft.UserID
	}
	owner, err := adventures.NormalizeUserID(owner)
	if err != nil {
		return adventures.Adventure{}, newServiceError(opCreate, "missing_user_id", err)
	}

	entityID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return adventures.Adventure{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	entity := draft
	entity.ID = entityID
	entity.UserID = owner
	entity.Likes = []string{}
	entity.Comments = []adventures.Comment{}
	entity.CreatedAt = now
	entity.UpdatedAt = now

	payload, err := encodePayload(entity)
	if err != nil {
		return adventures.Adventure{}, newServiceError(opCreate, reasonInvalid, fmt.Errorf("%w: %v", ErrInvalidEntity, err))
	}
	record := Entity{
		EntityID:       entityID,
		Collection:     collection.String(),
		UserID:         owner,
		Kind:           entity.Kind().String(),
		PayloadJSON:    payload,
		CreatedAtNanos: now.UnixNano(),
		UpdatedAtNanos: now.UnixNano(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("entity_id", entityID))
		return adventures.Adventure{}, newServiceError(opCreate, "insert_failed", err)
	}
	return entity, nil
}

// Update merges the top-level fields of partial over the stored entity in the
// collection's wire shape. Identity, ownership, likes, comments and timestamps are never overwritten.
func (s *Service) Update(ctx context.Context, collection adventures.Collection, id string, partial []byte) (adventures.Adventure, error) {
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(partial, &overlay); err != nil || overlay == nil {
		return adventures.Adventure{}, newServiceError(opUpdate, reasonInvalid, fmt.Errorf("%w: body must be a JSON object", ErrInvalidEntity))
	}

	var entityID string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.find(tx, opUpdate, collection, id)
		if err != nil {
			return err
		}
		current, err := decodeRecord(*record)
		if err != nil {
			s.logError(opUpdate, "decode_failed", err, zap.String("entity_id", record.EntityID))
			return newServiceError(opUpdate, "decode_failed", err)
		}
		merged, err := mergeFields(collection, current, overlay)
		if err != nil {
			return newServiceError(opUpdate, reasonInvalid, err)
		}
		if !collection.Supports(merged.Kind()) {
			return newServiceError(opUpdate, reasonInvalid,
				fmt.Errorf("%w: %s does not accept kind %q", ErrInvalidEntity, collection, merged.Kind()))
		}
		merged.ID = current.ID
		merged.UserID = current.UserID
		merged.CreatedAt = current.CreatedAt
		payload, err := encodePayload(merged)
		if err != nil {
			return newServiceError(opUpdate, reasonInvalid, fmt.Errorf("%w: %v", ErrInvalidEntity, err))
		}
		if err := tx.Model(&Entity{}).
			Where("entity_id = ?", record.EntityID).
			Updates(map[string]interface{}{
				"kind":          merged.Kind().String(),
				"payload_json":  payload,
				"updated_at_ns": s.clock().UTC().UnixNano(),
			}).Error; err != nil {
			s.logError(opUpdate, "update_failed", err, zap.String("entity_id", record.EntityID))
			return newServiceError(opUpdate, "update_failed", err)
		}
		entityID = record.EntityID
		return nil
	})
	if txErr != nil {
		return adventures.Adventure{}, txErr
	}
	return s.get(ctx, opUpdate, collection, entityID)
}

// Delete removes the entity together with its likes and comments.
func (s *Service) Delete(ctx context.Context, collection adventures.Collection, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.find(tx, opDelete, collection, id)
		if err != nil {
			return err
		}
		if err := tx.Where("entity_id = ?", record.EntityID).Delete(&Like{}).Error; err != nil {
			s.logError(opDelete, "likes_delete_failed", err, zap.String("entity_id", record.EntityID))
			return newServiceError(opDelete, "likes_delete_failed", err)
		}
		if err := tx.Where("entity_id = ?", record.EntityID).Delete(&Comment{}).Error; err != nil {
			s.logError(opDelete, "comments_delete_failed", err, zap.String("entity_id", record.EntityID))
			return newServiceError(opDelete, "comments_delete_failed", err)
		}
		if err := tx.Where("entity_id = ?", record.EntityID).Delete(&Entity{}).Error; err != nil {
			s.logError(opDelete, "entity_delete_failed", err, zap.String("entity_id", record.EntityID))
			return newServiceError(opDelete, "entity_delete_failed", err)
		}
		return nil
	})
}

// Like adds userID to the entity's like set. Liking twice is a no-op.
func (s *Service) Like(ctx context.Context, collection adventures.Collection, id, userID string) (adventures.Adventure, error) {
	return s.setLike(ctx, opLike, collection, id, userID, true)
}

// Unlike removes userID from the entity's like set. Unliking an absent member is a no-op.
func (s *Service) Unlike(ctx context.Context, collection adventures.Collection, id, userID string) (adventures.Adventure, error) {
	return s.setLike(ctx, opUnlike, collection, id, userID, false)
}

func (s *Service) setLike(ctx context.Context, operation string, collection adventures.Collection, id, userID string, liked bool) (adventures.Adventure, error) {
	member, err := adventures.NormalizeUserID(userID)
	if err != nil {
		return adventures.Adventure{}, newServiceError(operation, "missing_user_id", err)
	}
	var entityID string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.find(tx, operation, collection, id)
		if err != nil {
			return err
		}
		entityID = record.EntityID
		if liked {
			err = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Like{
				EntityID:       record.EntityID,
				UserID:         member,
				CreatedAtNanos: s.clock().UTC().UnixNano(),
			}).Error
		} else {
			err = tx.Where("entity_id = ? AND user_id = ?", record.EntityID, member).Delete(&Like{}).Error
		}
		if err != nil {
			s.logError(operation, "write_failed", err, zap.String("entity_id", record.EntityID), zap.String("user_id", member))
			return newServiceError(operation, "write_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return adventures.Adventure{}, txErr
	}
	return s.get(ctx, operation, collection, entityID)
}

// AddComment appends a comment to the entity and returns it with its server-assigned id and time.
func (s *Service) AddComment(ctx context.Context, collection adventures.Collection, id string, draft adventures.CommentDraft) (adventures.Comment, error) {
	if strings.TrimSpace(draft.Text) == "" {
		return adventures.Comment{}, newServiceError(opAddComment, "empty_text", ErrEmptyComment)
	}
	author, err := adventures.NormalizeUserID(draft.UserID)
	if err != nil {
		return adventures.Comment{}, newServiceError(opAddComment, "missing_user_id", err)
	}
	db := s.db.WithContext(ctx)
	record, err := s.find(db, opAddComment, collection, id)
	if err != nil {
		return adventures.Comment{}, err
	}
	commentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddComment, "id_generation_failed", err)
		return adventures.Comment{}, newServiceError(opAddComment, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	row := Comment{
		CommentID:      commentID,
		EntityID:       record.EntityID,
		UserID:         author,
		Text:           draft.Text,
		CreatedAtNanos: now.UnixNano(),
	}
	if err := db.Create(&row).Error; err != nil {
		s.logError(opAddComment, "insert_failed", err, zap.String("entity_id", record.EntityID))
		return adventures.Comment{}, newServiceError(opAddComment, "insert_failed", err)
	}
	return row.comment(), nil
}

// StoreImage persists an uploaded image and returns its id.
func (s *Service) StoreImage(ctx context.Context, contentType string, data []byte) (string, error) {
	if len(data) == 0 || strings.TrimSpace(contentType) == "" {
		return "", newServiceError(opStoreImage, "empty_image", ErrInvalidImage)
	}
	imageID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opStoreImage, "id_generation_failed", err)
		return "", newServiceError(opStoreImage, "id_generation_failed", err)
	}
	record := Image{
		ImageID:        imageID,
		ContentType:    contentType,
		Data:           data,
		CreatedAtNanos: s.clock().UTC().UnixNano(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opStoreImage, "insert_failed", err)
		return "", newServiceError(opStoreImage, "insert_failed", err)
	}
	return imageID, nil
}

// Image loads an uploaded image by id.
func (s *Service) Image(ctx context.Context, id string) (Image, error) {
	var record Image
	err := s.db.WithContext(ctx).Where("image_id = ?", strings.TrimSpace(id)).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Image{}, newServiceError(opLoadImage, "not_found", ErrImageNotFound)
	}
	if err != nil {
		s.logError(opLoadImage, "query_failed", err, zap.String("image_id", id))
		return Image{}, newServiceError(opLoadImage, "query_failed", err)
	}
	return record, nil
}

func (s *Service) get(ctx context.Context, operation string, collection adventures.Collection, id string) (adventures.Adventure, error) {
	record, err := s.find(s.db.WithContext(ctx), operation, collection, id)
	if err != nil {
		return adventures.Adventure{}, err
	}
	entities, err := s.hydrate(ctx, operation, []Entity{*record})
	if err != nil {
		return adventures.Adventure{}, err
	}
	return entities[0], nil
}

func (s *Service) find(tx *gorm.DB, operation string, collection adventures.Collection, id string) (*Entity, error) {
	entityID, err := adventures.NormalizeID(id)
	if err != nil {
		return nil, newServiceError(operation, "invalid_id", err)
	}
	var record Entity
	err = tx.Where("collection = ? AND entity_id = ?", collection.String(), entityID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newServiceError(operation, "not_found", fmt.Errorf("%w: %s", ErrEntityNotFound, entityID))
	}
	if err != nil {
		s.logError(operation, "entity_select_failed", err, zap.String("entity_id", entityID))
		return nil, newServiceError(operation, "entity_select_failed", err)
	}
	return &record, nil
}

func (s *Service) hydrate(ctx context.Context, operation string, records []Entity) ([]adventures.Adventure, error) {
	entities := make([]adventures.Adventure, 0, len(records))
	if len(records) == 0 {
		return entities, nil
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.EntityID)
	}

	db := s.db.WithContext(ctx)
	var likeRows []Like
	if err := db.Where("entity_id IN ?", ids).
		Order("created_at_ns ASC").
		Order("user_id ASC").
		Find(&likeRows).Error; err != nil {
		s.logError(operation, "likes_query_failed", err)
		return nil, newServiceError(operation, "likes_query_failed", err)
	}
	var commentRows []Comment
	if err := db.Where("entity_id IN ?", ids).
		Order("created_at_ns ASC").
		Order("comment_id ASC").
		Find(&commentRows).Error; err != nil {
		s.logError(operation, "comments_query_failed", err)
		return nil, newServiceError(operation, "comments_query_failed", err)
	}

	likes := make(map[string][]string, len(records))
	for _, row := range likeRows {
		likes[row.EntityID] = append(likes[row.EntityID], row.UserID)
	}
	comments := make(map[string][]adventures.Comment, len(records))
	for _, row := range commentRows {
		comments[row.EntityID] = append(comments[row.EntityID], row.comment())
	}

	for _, record := range records {
		entity, err := decodeRecord(record)
		if err != nil {
			s.logError(operation, "decode_failed", err, zap.String("entity_id", record.EntityID))
			return nil, newServiceError(operation, "decode_failed", err)
		}
		entity.Likes = likes[record.EntityID]
		if entity.Likes == nil {
			entity.Likes = []string{}
		}
		entity.Comments = comments[record.EntityID]
		if entity.Comments == nil {
			entity.Comments = []adventures.Comment{}
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func (c Comment) comment() adventures.Comment {
	return adventures.Comment{
		ID:        c.CommentID,
		UserID:    c.UserID,
		Text:      c.Text,
		CreatedAt: time.Unix(0, c.CreatedAtNanos).UTC(),
	}
}

func encodePayload(entity adventures.Adventure) (string, error) {
	stored := entity
	stored.ID = ""
	stored.Likes = nil
	stored.Comments = nil
	stored.CreatedAt = time.Time{}
	stored.UpdatedAt = time.Time{}
	payload, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decodeRecord(record Entity) (adventures.Adventure, error) {
	var entity adventures.Adventure
	if err := json.Unmarshal([]byte(record.PayloadJSON), &entity); err != nil {
		return adventures.Adventure{}, err
	}
	entity.ID = record.EntityID
	entity.UserID = record.UserID
	entity.CreatedAt = time.Unix(0, record.CreatedAtNanos).UTC()
	entity.UpdatedAt = time.Unix(0, record.UpdatedAtNanos).UTC()
	return entity, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("catalog service error", attrs...)
}
