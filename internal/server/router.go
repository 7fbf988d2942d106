package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
	"github.com/MarcoPoloResearchLab/basecamp/internal/apiclient"
	"github.com/MarcoPoloResearchLab/basecamp/internal/catalog"
	"github.com/MarcoPoloResearchLab/basecamp/internal/images"
	"github.com/MarcoPoloResearchLab/basecamp/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey         = "basecamp_user_id"
	uploadFormField          = "image"
	defaultHeartbeatInterval = 15 * time.Second
)

var errMissingCatalog = errors.New("catalog service dependency required")

// Dependencies wires the development API. Users, Realtime and PublicBaseURL are optional;
// without PublicBaseURL upload URLs are derived from the request host.
type Dependencies struct {
	Catalog           *catalog.Service
	Users             *users.Service
	Realtime          *RealtimeDispatcher
	PublicBaseURL     string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		catalog:       deps.Catalog,
		users:         deps.Users,
		realtime:      realtime,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(deps.PublicBaseURL), "/"),
		heartbeat:     heartbeat,
		logger:        logger,
	}
	router.Use(handler.identifyRequest)

	api := router.Group("/api")
	api.POST("/upload", handler.handleUpload)
	api.GET("/users/:id", handler.handleUser)
	api.GET("/:collection", handler.handleList)
	api.POST("/:collection", handler.handleCreate)
	api.GET("/:collection/stream", handler.handleStream)
	api.PUT("/:collection/:id", handler.handleUpdate)
	api.DELETE("/:collection/:id", handler.handleDelete)
	api.POST("/:collection/:id/likes", handler.handleLike)
	api.DELETE("/:collection/:id/likes", handler.handleUnlike)
	api.POST("/:collection/:id/comments", handler.handleComment)
	router.GET("/uploads/:id", handler.handleImage)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			"Content-Type",
			apiclient.UserHeader,
			apiclient.UserNameHeader,
			apiclient.UserAvatarHeader,
		},
		MaxAge: 12 * time.Hour,
	})
}

type httpHandler struct {
	catalog       *catalog.Service
	users         *users.Service
	realtime      *RealtimeDispatcher
	publicBaseURL string
	heartbeat     time.Duration
	logger        *zap.Logger
}

// identifyRequest records the caller identity presented in the X-User-* headers.
// Requests without one pass through anonymously.
func (h *httpHandler) identifyRequest(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(apiclient.UserHeader))
	if userID == "" {
		c.Next()
		return
	}
	c.Set(userIDContextKey, userID)
	if h.users != nil {
		user := adventures.User{
			ID:             userID,
			Username:       c.GetHeader(apiclient.UserNameHeader),
			ProfilePicture: c.GetHeader(apiclient.UserAvatarHeader),
		}
		if err := h.users.Touch(c.Request.Context(), user); err != nil {
			h.logger.Warn("failed to record user profile", zap.String("user_id", userID), zap.Error(err))
		}
	}
	c.Next()
}

func (h *httpHandler) handleList(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	entities, err := h.catalog.List(c.Request.Context(), collection)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]json.RawMessage, 0, len(entities))
	for _, entity := range entities {
		encoded, err := collection.Marshal(entity)
		if err != nil {
			h.respondError(c, err)
			return
		}
		payload = append(payload, encoded)
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleCreate(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	draft, err := collection.Unmarshal(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_entity"})
		return
	}
	created, err := h.catalog.Create(c.Request.Context(), collection, c.GetString(userIDContextKey), draft)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(collection, RealtimeEventEntityChanged, created.ID)
	h.respondEntity(c, http.StatusCreated, collection, created)
}

func (h *httpHandler) handleUpdate(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	updated, err := h.catalog.Update(c.Request.Context(), collection, c.Param("id"), body)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(collection, RealtimeEventEntityChanged, updated.ID)
	h.respondEntity(c, http.StatusOK, collection, updated)
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.catalog.Delete(c.Request.Context(), collection, id); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(collection, RealtimeEventEntityDeleted, strings.TrimSpace(id))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleLike(c *gin.Context) {
	h.handleLikeChange(c, true)
}

func (h *httpHandler) handleUnlike(c *gin.Context) {
	h.handleLikeChange(c, false)
}

func (h *httpHandler) handleLikeChange(c *gin.Context, liked bool) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_user_id"})
		return
	}
	var (
		entity adventures.Adventure
		err    error
	)
	if liked {
		entity, err = h.catalog.Like(c.Request.Context(), collection, c.Param("id"), userID)
	} else {
		entity, err = h.catalog.Unlike(c.Request.Context(), collection, c.Param("id"), userID)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(collection, RealtimeEventEntityChanged, entity.ID)
	h.respondEntity(c, http.StatusOK, collection, entity)
}

func (h *httpHandler) handleComment(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	var draft adventures.CommentDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if strings.TrimSpace(draft.UserID) == "" {
		draft.UserID = c.GetString(userIDContextKey)
	}
	comment, err := h.catalog.AddComment(c.Request.Context(), collection, c.Param("id"), draft)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(collection, RealtimeEventEntityChanged, strings.TrimSpace(c.Param("id")))
	c.JSON(http.StatusCreated, comment)
}

func (h *httpHandler) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, images.MaxFileBytes+(1<<20))
	header, err := c.FormFile(uploadFormField)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_image"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_image"})
		return
	}
	defer file.Close()

	image, err := images.Read(header.Filename, file)
	if err != nil {
		h.logger.Debug("upload rejected", zap.String("filename", header.Filename), zap.Error(err))
		status := http.StatusUnsupportedMediaType
		if errors.Is(err, images.ErrFileTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": "invalid_image"})
		return
	}
	imageID, err := h.catalog.StoreImage(c.Request.Context(), image.ContentType, image.Data)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": h.baseURL(c) + "/uploads/" + imageID})
}

func (h *httpHandler) handleImage(c *gin.Context) {
	image, err := h.catalog.Image(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, image.ContentType, image.Data)
}

func (h *httpHandler) handleUser(c *gin.Context) {
	if h.users == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	user, err := h.users.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type realtimePayload struct {
	Collection string    `json:"collection"`
	EntityIDs  []string  `json:"entityIds"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

// handleStream pushes change events for one collection as server-sent events.
func (h *httpHandler) handleStream(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, collection.String())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, realtimePayload{
				Collection: message.Collection,
				EntityIDs:  message.EntityIDs,
				Timestamp:  message.Timestamp,
				Source:     realtimeSourceBackend,
			})
			return true
		case now := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, realtimePayload{
				Collection: collection.String(),
				EntityIDs:  []string{},
				Timestamp:  now.UTC(),
				Source:     realtimeSourceBackend,
			})
			return true
		}
	})
}

func (h *httpHandler) collection(c *gin.Context) (adventures.Collection, bool) {
	collection, err := adventures.ParseCollection(c.Param("collection"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_collection"})
		return "", false
	}
	return collection, true
}

func (h *httpHandler) publish(collection adventures.Collection, eventType, entityID string) {
	if entityID == "" {
		return
	}
	h.realtime.Publish(RealtimeMessage{
		Collection: collection.String(),
		EventType:  eventType,
		EntityIDs:  []string{entityID},
		Timestamp:  time.Now().UTC(),
	})
}

func (h *httpHandler) respondEntity(c *gin.Context, status int, collection adventures.Collection, entity adventures.Adventure) {
	payload, err := collection.Marshal(entity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(status, "application/json; charset=utf-8", payload)
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, catalog.ErrEntityNotFound),
		errors.Is(err, catalog.ErrImageNotFound),
		errors.Is(err, users.ErrUnknownUser):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, catalog.ErrInvalidEntity),
		errors.Is(err, catalog.ErrEmptyComment),
		errors.Is(err, catalog.ErrInvalidImage),
		errors.Is(err, adventures.ErrInvalidID),
		errors.Is(err, adventures.ErrInvalidUserID),
		errors.Is(err, adventures.ErrKindNotSupported):
		status, code = http.StatusBadRequest, "invalid_request"
	}
	var serviceErr *catalog.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code})
}

func (h *httpHandler) baseURL(c *gin.Context) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}
