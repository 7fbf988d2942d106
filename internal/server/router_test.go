package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/basecamp/internal/apiclient"
	"github.com/MarcoPoloResearchLab/basecamp/internal/catalog"
	"github.com/MarcoPoloResearchLab/basecamp/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const bassCatchJSON = `{"userId":"user-1","date":"2024-05-01","location":{"name":"Lake X","coordinates":{"lat":0,"lng":0}},"species":"Bass","size":{"value":4.5,"unit":"lbs"},"length":{"value":18,"unit":"in"},"method":{"type":"spinning"},"description":""}`

type testBackend struct {
	server   *httptest.Server
	catalog  *catalog.Service
	users    *users.Service
	realtime *RealtimeDispatcher
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	models := append(catalog.Models(), &users.Profile{})
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{Database: db, IDProvider: catalog.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to construct catalog: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct users: %v", err)
	}
	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		Catalog:           catalogService,
		Users:             userService,
		Realtime:          dispatcher,
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &testBackend{server: server, catalog: catalogService, users: userService, realtime: dispatcher}
}

func (b *testBackend) do(t *testing.T, method, path, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	request, err := http.NewRequest(method, b.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	for name, value := range headers {
		request.Header.Set(name, value)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	payload, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return response, payload
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	canvas := image.NewRGBA(image.Rect(0, 0, 2, 2))
	canvas.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, canvas); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buffer.Bytes()
}

func TestNewHTTPHandlerRequiresCatalog(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatalf("expected missing catalog to be rejected")
	}
}

func TestCORSMiddlewareAllowsIdentityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(corsMiddleware())
	router.OPTIONS("/api/adventures", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	request := httptest.NewRequest(http.MethodOptions, "/api/adventures", http.NoBody)
	request.Header.Set("Origin", "https://app.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodPut)
	request.Header.Set("Access-Control-Request-Headers", apiclient.UserHeader)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	allowHeaders := recorder.Header().Get("Access-Control-Allow-Headers")
	if !strings.Contains(strings.ToLower(allowHeaders), strings.ToLower(apiclient.UserHeader)) {
		t.Fatalf("expected Access-Control-Allow-Headers to include %s, got %q", apiclient.UserHeader, allowHeaders)
	}
}

func TestCatchesRoundTripFlattenedShape(t *testing.T) {
	backend := newTestBackend(t)

	response, body := backend.do(t, http.MethodPost, "/api/catches", bassCatchJSON, map[string]string{apiclient.UserHeader: "user-1"})
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create status %d: %s", response.StatusCode, body)
	}
	var created map[string]any
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("failed to decode created catch: %v", err)
	}
	if created["species"] != "Bass" || created["id"] == "" {
		t.Fatalf("expected flattened catch with id, got %s", body)
	}
	if _, nested := created["details"]; nested {
		t.Fatalf("catch responses must not carry a details object: %s", body)
	}

	response, body = backend.do(t, http.MethodGet, "/api/catches", "", nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected list status %d", response.StatusCode)
	}
	var listed []map[string]any
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(listed) != 1 || listed[0]["id"] != created["id"] {
		t.Fatalf("unexpected listing: %s", body)
	}

	response, _ = backend.do(t, http.MethodGet, "/api/adventures", "", nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected adventures status %d", response.StatusCode)
	}
}

func TestRejectsUnknownCollectionAndInvalidEntities(t *testing.T) {
	backend := newTestBackend(t)

	response, _ := backend.do(t, http.MethodGet, "/api/posts", "", nil)
	if response.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown collection, got %d", response.StatusCode)
	}

	sailing := `{"userId":"user-1","type":"sailing","location":{"name":"Bay","coordinates":{"lat":0,"lng":0}},"details":{}}`
	response, body := backend.do(t, http.MethodPost, "/api/adventures", sailing, nil)
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown kind, got %d: %s", response.StatusCode, body)
	}
	response, _ = backend.do(t, http.MethodPost, "/api/catches", "{", nil)
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", response.StatusCode)
	}

	response, body = backend.do(t, http.MethodPut, "/api/adventures/missing", `{"description":"x"}`, nil)
	if response.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing entity, got %d: %s", response.StatusCode, body)
	}
	if !strings.Contains(string(body), "catalog.update.not_found") {
		t.Fatalf("expected coded error body, got %s", body)
	}
}

func TestLikesRequireCallerIdentity(t *testing.T) {
	backend := newTestBackend(t)
	_, body := backend.do(t, http.MethodPost, "/api/catches", bassCatchJSON, nil)
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("failed to decode created catch: %v", err)
	}

	response, _ := backend.do(t, http.MethodPost, "/api/catches/"+created.ID+"/likes", "", nil)
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without identity, got %d", response.StatusCode)
	}
	response, body = backend.do(t, http.MethodPost, "/api/catches/"+created.ID+"/likes", "", map[string]string{apiclient.UserHeader: "user-2"})
	if response.StatusCode != http.StatusOK || !strings.Contains(string(body), `"likes":["user-2"]`) {
		t.Fatalf("unexpected like response %d: %s", response.StatusCode, body)
	}
}

func TestUploadStoresAndServesImage(t *testing.T) {
	backend := newTestBackend(t)
	data := pngBytes(t)

	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile("image", "bass.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	response, err := http.Post(backend.server.URL+"/api/upload", writer.FormDataContentType(), &buffer)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer response.Body.Close()
	var uploaded struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(response.Body).Decode(&uploaded); err != nil {
		t.Fatalf("failed to decode upload response: %v", err)
	}
	if !strings.HasPrefix(uploaded.URL, backend.server.URL+"/uploads/") {
		t.Fatalf("unexpected upload url %q", uploaded.URL)
	}

	imageResponse, err := http.Get(uploaded.URL)
	if err != nil {
		t.Fatalf("failed to fetch image: %v", err)
	}
	defer imageResponse.Body.Close()
	served, err := io.ReadAll(imageResponse.Body)
	if err != nil {
		t.Fatalf("failed to read image: %v", err)
	}
	if imageResponse.Header.Get("Content-Type") != "image/png" || !bytes.Equal(served, data) {
		t.Fatalf("served image does not match upload")
	}
}

func TestUploadRejectsNonImages(t *testing.T) {
	backend := newTestBackend(t)

	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile("image", "trout.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte("plain text, not a picture")); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	response, err := http.Post(backend.server.URL+"/api/upload", writer.FormDataContentType(), &buffer)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", response.StatusCode)
	}
}

func TestIdentityHeadersRecordProfiles(t *testing.T) {
	backend := newTestBackend(t)
	headers := map[string]string{
		apiclient.UserHeader:     "user-7",
		apiclient.UserNameHeader: "Ana",
	}
	backend.do(t, http.MethodGet, "/api/adventures", "", headers)

	response, body := backend.do(t, http.MethodGet, "/api/users/user-7", "", nil)
	if response.StatusCode != http.StatusOK || !strings.Contains(string(body), `"username":"Ana"`) {
		t.Fatalf("unexpected profile response %d: %s", response.StatusCode, body)
	}
	response, _ = backend.do(t, http.MethodGet, "/api/users/nobody", "", nil)
	if response.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", response.StatusCode)
	}
}

func TestStreamEmitsEntityChangeEvents(t *testing.T) {
	backend := newTestBackend(t)

	streamResp, err := http.Get(backend.server.URL + "/api/catches/stream")
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = streamResp.Body.Close()
	})
	if streamResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", streamResp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		backend.realtime.mu.RLock()
		subscribed := len(backend.realtime.subscribers["catches"]) > 0
		backend.realtime.mu.RUnlock()
		if subscribed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, body := backend.do(t, http.MethodPost, "/api/catches", bassCatchJSON, nil)
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("failed to decode created catch: %v", err)
	}

	type readResult struct {
		line string
		err  error
	}
	streamReader := bufio.NewReader(streamResp.Body)
	currentEventType := ""
	timeout := time.After(5 * time.Second)
	for {
		resultCh := make(chan readResult, 1)
		go func() {
			line, err := streamReader.ReadString('\n')
			resultCh <- readResult{line: line, err: err}
		}()
		select {
		case <-timeout:
			t.Fatal("timed out waiting for realtime event")
		case res := <-resultCh:
			if res.err != nil {
				t.Fatalf("failed to read stream: %v", res.err)
			}
			line := strings.TrimSpace(res.line)
			if strings.HasPrefix(line, "event:") {
				currentEventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if !strings.HasPrefix(line, "data:") || currentEventType != RealtimeEventEntityChanged {
				continue
			}
			var payload realtimePayload
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &payload); err != nil {
				t.Fatalf("failed to decode event payload: %v", err)
			}
			if len(payload.EntityIDs) != 1 || payload.EntityIDs[0] != created.ID {
				t.Fatalf("unexpected entity identifiers: %#v", payload.EntityIDs)
			}
			return
		}
	}
}
