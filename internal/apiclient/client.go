// Package apiclient talks to the feed backend over the documented HTTP contract.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
	"github.com/MarcoPoloResearchLab/basecamp/internal/images"
	"go.uber.org/zap"
)

// Caller identity headers. The session collaborator establishes who the caller is;
// the profile headers let the backend resolve display names for other users.
const (
	UserHeader       = "X-User-ID"
	UserNameHeader   = "X-User-Name"
	UserAvatarHeader = "X-User-Avatar"
)

const (
	opList        = "apiclient.list"
	opCreate      = "apiclient.create"
	opUpdate      = "apiclient.update"
	opDelete      = "apiclient.delete"
	opLike        = "apiclient.like"
	opUnlike      = "apiclient.unlike"
	opAddComment  = "apiclient.add_comment"
	opUploadImage = "apiclient.upload_image"
	opUser        = "apiclient.user"

	reasonEncode    = "encode"
	reasonTransport = "transport"
	reasonStatus    = "status"
	reasonDecode    = "decode"
	reasonArgument  = "argument"

	uploadField     = "image"
	uploadPath      = "/api/upload"
	jsonContentType = "application/json"
)

var (
	errMissingBaseURL    = errors.New("base url is required")
	errMissingCollection = errors.New("collection is required")
	errMissingUploadURL  = errors.New("upload response carried no url")
)

// RequestError reports a failed API call. Reason is one of encode, transport, status, decode or argument.
type RequestError struct {
	Operation  string
	Reason     string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	message := fmt.Sprintf("%s.%s", e.Operation, e.Reason)
	if e.StatusCode != 0 {
		message = fmt.Sprintf("%s (status %d)", message, e.StatusCode)
	}
	if e.Err != nil {
		message = fmt.Sprintf("%s: %v", message, e.Err)
	}
	return message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Code returns "<operation>.<reason>".
func (e *RequestError) Code() string {
	return e.Operation + "." + e.Reason
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Collection adventures.Collection
	UserID     string
	Username   string
	AvatarURL  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client issues requests against one entity collection.
type Client struct {
	baseURL    *url.URL
	collection adventures.Collection
	userID     string
	username   string
	avatarURL  string
	httpClient *http.Client
	logger     *zap.Logger
}

// New validates cfg and constructs a Client.
func New(cfg Config) (*Client, error) {
	rawBaseURL := strings.TrimSpace(cfg.BaseURL)
	if rawBaseURL == "" {
		return nil, errMissingBaseURL
	}
	baseURL, err := url.Parse(strings.TrimRight(rawBaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: invalid base url: %w", err)
	}
	if cfg.Collection == "" {
		return nil, errMissingCollection
	}
	collection, err := adventures.ParseCollection(cfg.Collection.String())
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    baseURL,
		collection: collection,
		userID:     strings.TrimSpace(cfg.UserID),
		username:   strings.TrimSpace(cfg.Username),
		avatarURL:  strings.TrimSpace(cfg.AvatarURL),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Collection returns the collection this client targets.
func (c *Client) Collection() adventures.Collection {
	return c.collection
}

// List fetches the full collection in server order.
func (c *Client) List(ctx context.Context) ([]adventures.Adventure, error) {
	body, err := c.do(ctx, opList, http.MethodGet, c.collectionPath(), nil, "")
	if err != nil {
		return nil, err
	}
	entities, err := c.collection.UnmarshalList(body)
	if err != nil {
		return nil, c.fail(opList, reasonDecode, 0, err)
	}
	return entities, nil
}

// Create submits a draft and returns the server's entity, including assigned id and timestamps.
func (c *Client) Create(ctx context.Context, draft adventures.Adventure) (adventures.Adventure, error) {
	payload, err := c.collection.Marshal(draft)
	if err != nil {
		return adventures.Adventure{}, c.fail(opCreate, reasonEncode, 0, err)
	}
	body, err := c.do(ctx, opCreate, http.MethodPost, c.collectionPath(), bytes.NewReader(payload), jsonContentType)
	if err != nil {
		return adventures.Adventure{}, err
	}
	created, err := c.collection.Unmarshal(body)
	if err != nil {
		return adventures.Adventure{}, c.fail(opCreate, reasonDecode, 0, err)
	}
	return created, nil
}

// Update submits a partial entity and returns the server's full entity.
func (c *Client) Update(ctx context.Context, id string, patch adventures.Patch) (adventures.Adventure, error) {
	path, err := c.entityPath(opUpdate, id)
	if err != nil {
		return adventures.Adventure{}, err
	}
	payload, err := c.collection.MarshalPatch(patch)
	if err != nil {
		return adventures.Adventure{}, c.fail(opUpdate, reasonEncode, 0, err)
	}
	body, err := c.do(ctx, opUpdate, http.MethodPut, path, bytes.NewReader(payload), jsonContentType)
	if err != nil {
		return adventures.Adventure{}, err
	}
	updated, err := c.collection.Unmarshal(body)
	if err != nil {
		return adventures.Adventure{}, c.fail(opUpdate, reasonDecode, 0, err)
	}
	return updated, nil
}

// Delete removes an entity. The response body is ignored.
func (c *Client) Delete(ctx context.Context, id string) error {
	path, err := c.entityPath(opDelete, id)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, opDelete, http.MethodDelete, path, nil, "")
	return err
}

// Like adds userID to the entity's like set. An empty userID falls back to the configured identity.
func (c *Client) Like(ctx context.Context, id, userID string) error {
	return c.likes(ctx, opLike, http.MethodPost, id, userID)
}

// Unlike removes userID from the entity's like set.
func (c *Client) Unlike(ctx context.Context, id, userID string) error {
	return c.likes(ctx, opUnlike, http.MethodDelete, id, userID)
}

func (c *Client) likes(ctx context.Context, operation, method, id, userID string) error {
	path, err := c.entityPath(operation, id)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, operation, method, path+"/likes", nil, "", c.identity(userID))
	return err
}

// AddComment submits a comment and returns it with server-assigned id and timestamp.
func (c *Client) AddComment(ctx context.Context, id string, draft adventures.CommentDraft) (adventures.Comment, error) {
	path, err := c.entityPath(opAddComment, id)
	if err != nil {
		return adventures.Comment{}, err
	}
	payload, err := json.Marshal(draft)
	if err != nil {
		return adventures.Comment{}, c.fail(opAddComment, reasonEncode, 0, err)
	}
	body, err := c.send(ctx, opAddComment, http.MethodPost, path+"/comments", bytes.NewReader(payload), jsonContentType, c.identity(draft.UserID))
	if err != nil {
		return adventures.Comment{}, err
	}
	var comment adventures.Comment
	if err := json.Unmarshal(body, &comment); err != nil {
		return adventures.Comment{}, c.fail(opAddComment, reasonDecode, 0, err)
	}
	return comment, nil
}

type uploadResponse struct {
	URL string `json:"url"`
}

// UploadImage posts the file as multipart field "image" and returns the stored reference URL.
func (c *Client) UploadImage(ctx context.Context, file images.File) (string, error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadField, file.Name))
	header.Set("Content-Type", file.ContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", c.fail(opUploadImage, reasonEncode, 0, err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", c.fail(opUploadImage, reasonEncode, 0, err)
	}
	if err := writer.Close(); err != nil {
		return "", c.fail(opUploadImage, reasonEncode, 0, err)
	}

	body, err := c.do(ctx, opUploadImage, http.MethodPost, uploadPath, &buffer, writer.FormDataContentType())
	if err != nil {
		return "", err
	}
	var response uploadResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", c.fail(opUploadImage, reasonDecode, 0, err)
	}
	if strings.TrimSpace(response.URL) == "" {
		return "", c.fail(opUploadImage, reasonDecode, 0, errMissingUploadURL)
	}
	return response.URL, nil
}

// User fetches the public profile of a user.
func (c *Client) User(ctx context.Context, id string) (adventures.User, error) {
	normalized, err := adventures.NormalizeUserID(id)
	if err != nil {
		return adventures.User{}, c.fail(opUser, reasonArgument, 0, err)
	}
	body, err := c.do(ctx, opUser, http.MethodGet, "/api/users/"+url.PathEscape(normalized), nil, "")
	if err != nil {
		return adventures.User{}, err
	}
	var user adventures.User
	if err := json.Unmarshal(body, &user); err != nil {
		return adventures.User{}, c.fail(opUser, reasonDecode, 0, err)
	}
	return user, nil
}

func (c *Client) collectionPath() string {
	return "/api/" + c.collection.String()
}

func (c *Client) entityPath(operation, id string) (string, error) {
	normalized, err := adventures.NormalizeID(id)
	if err != nil {
		return "", c.fail(operation, reasonArgument, 0, err)
	}
	return c.collectionPath() + "/" + url.PathEscape(normalized), nil
}

func (c *Client) identity(override string) string {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return trimmed
	}
	return c.userID
}

func (c *Client) do(ctx context.Context, operation, method, path string, body io.Reader, contentType string) ([]byte, error) {
	return c.send(ctx, operation, method, path, body, contentType, c.userID)
}

func (c *Client) send(ctx context.Context, operation, method, path string, body io.Reader, contentType, userID string) ([]byte, error) {
	target := c.baseURL.String() + path
	request, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, c.fail(operation, reasonEncode, 0, err)
	}
	request.Header.Set("Accept", jsonContentType)
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if userID != "" {
		request.Header.Set(UserHeader, userID)
	}
	if userID != "" && userID == c.userID {
		if c.username != "" {
			request.Header.Set(UserNameHeader, c.username)
		}
		if c.avatarURL != "" {
			request.Header.Set(UserAvatarHeader, c.avatarURL)
		}
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, c.fail(operation, reasonTransport, 0, err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, c.fail(operation, reasonTransport, response.StatusCode, err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, c.fail(operation, reasonStatus, response.StatusCode, errors.New(http.StatusText(response.StatusCode)))
	}
	c.logger.Debug("api request completed",
		zap.String("operation", operation),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", response.StatusCode))
	return payload, nil
}

func (c *Client) fail(operation, reason string, status int, cause error) error {
	c.logger.Warn("api request failed",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Int("status", status),
		zap.Error(cause))
	return &RequestError{Operation: operation, Reason: reason, StatusCode: status, Err: cause}
}
