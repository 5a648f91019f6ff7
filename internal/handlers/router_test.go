package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"layover-match/internal/apperr"
	"layover-match/internal/auth"
	lmredis "layover-match/internal/redis"
	"layover-match/internal/session"
	"layover-match/internal/store/memstore"
	"layover-match/internal/websocket"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePhotos struct {
	uploaded []string
	deleted  []string
}

func (f *fakePhotos) CheckImage(contentType string, size int64) error {
	if contentType != "image/png" {
		return apperr.Invalid("unsupported image type %q", contentType)
	}
	return nil
}

func (f *fakePhotos) UploadPhoto(ctx context.Context, userID string, file io.Reader, size int64, contentType string) (string, error) {
	url := fmt.Sprintf("https://photos.example/%s/%d.png", userID, len(f.uploaded))
	f.uploaded = append(f.uploaded, url)
	return url, nil
}

func (f *fakePhotos) DeleteFile(ctx context.Context, fileURL string) error {
	f.deleted = append(f.deleted, fileURL)
	return nil
}

type testAPI struct {
	router *gin.Engine
	photos *fakePhotos
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	l := logrus.New()
	l.SetOutput(io.Discard)
	log := logrus.NewEntry(l)

	mr := miniredis.RunT(t)
	tokens := lmredis.NewClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	backend := memstore.New()
	photos := &fakePhotos{}
	hub := websocket.NewHub(log)

	router := NewRouter(Deps{
		Auth:     auth.NewService(backend, tokens, "test-secret", time.Hour, log),
		Sessions: session.NewManager(backend, log, session.OnEvict(hub.Disconnect)),
		Airports: backend,
		Photos:   photos,
		Hub:      hub,
		Log:      log,
	})
	return &testAPI{router: router, photos: photos}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.serve(t, req)
}

func (a *testAPI) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

type traveler struct {
	id    string
	token string
}

func (a *testAPI) signUp(t *testing.T, email string) traveler {
	t.Helper()
	w, out := a.do(t, http.MethodPost, "/api/v1/auth/signup", "", gin.H{"email": email, "password": "long enough"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "authenticated_no_profile", out["session"].(map[string]any)["state"])
	return traveler{
		id:    out["account"].(map[string]any)["id"].(string),
		token: out["access_token"].(string),
	}
}

func (a *testAPI) onboard(t *testing.T, tr traveler, name string) {
	t.Helper()
	w, out := a.do(t, http.MethodPut, "/api/v1/profile", tr.token, gin.H{
		"name": name, "airport_code": "lhr", "terminal": "5", "destination": "jfk",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "authenticated_with_profile", out["session"].(map[string]any)["state"])
}

func ids(t *testing.T, list any, key string) []string {
	t.Helper()
	var out []string
	for _, item := range list.([]any) {
		out = append(out, item.(map[string]any)[key].(string))
	}
	return out
}

func TestMatchFlow(t *testing.T) {
	api := newTestAPI(t)
	ada := api.signUp(t, "ada@example.com")
	bo := api.signUp(t, "bo@example.com")

	w, _ := api.do(t, http.MethodGet, "/api/v1/candidates", ada.token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	api.onboard(t, ada, "Ada")
	api.onboard(t, bo, "Bo")

	w, out := api.do(t, http.MethodGet, "/api/v1/candidates", bo.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{ada.id}, ids(t, out["candidates"], "user_id"))

	w, out = api.do(t, http.MethodPost, "/api/v1/candidates/"+ada.id+"/like", bo.token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, out["result"].(map[string]any)["matched"])

	w, _ = api.do(t, http.MethodPost, "/api/v1/candidates/"+ada.id+"/like", bo.token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = api.do(t, http.MethodGet, "/api/v1/candidates?airport_code=LHR&terminal=5", ada.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{bo.id}, ids(t, out["candidates"], "user_id"))

	w, out = api.do(t, http.MethodPost, "/api/v1/candidates/"+bo.id+"/like", ada.token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	result := out["result"].(map[string]any)
	assert.Equal(t, true, result["matched"])
	assert.Equal(t, "like", result["verdict"])
	matchID := result["match"].(map[string]any)["id"].(string)

	w, out = api.do(t, http.MethodPost, "/api/v1/matches/reconcile", bo.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{matchID}, ids(t, out["new_matches"], "id"))

	w, _ = api.do(t, http.MethodPost, "/api/v1/matches/"+matchID+"/messages", ada.token, gin.H{"content": "coffee at gate 5?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w, _ = api.do(t, http.MethodPost, "/api/v1/matches/"+matchID+"/messages", ada.token, gin.H{"content": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = api.do(t, http.MethodGet, "/api/v1/matches/"+matchID+"/messages", bo.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, out["messages"], 1)
	assert.Equal(t, "coffee at gate 5?", out["messages"].([]any)[0].(map[string]any)["content"])

	w, _ = api.do(t, http.MethodGet, "/api/v1/matches/unknown/messages", bo.token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, out = api.do(t, http.MethodGet, "/api/v1/matches", ada.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{matchID}, ids(t, out["matches"], "id"))

	w, out = api.do(t, http.MethodGet, "/api/v1/decisions", ada.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, out["decisions"])
	w, _ = api.do(t, http.MethodPost, "/api/v1/decisions/"+bo.id+"/retry", ada.token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDislike(t *testing.T) {
	api := newTestAPI(t)
	ada := api.signUp(t, "ada@example.com")
	bo := api.signUp(t, "bo@example.com")
	api.onboard(t, ada, "Ada")
	api.onboard(t, bo, "Bo")

	api.do(t, http.MethodGet, "/api/v1/candidates", ada.token, nil)
	w, out := api.do(t, http.MethodPost, "/api/v1/candidates/"+bo.id+"/dislike", ada.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dislike", out["result"].(map[string]any)["verdict"])

	w, out = api.do(t, http.MethodGet, "/api/v1/candidates", ada.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, out["candidates"])

	// a new sign-in forgets session-local dislikes
	w, out = api.do(t, http.MethodPost, "/api/v1/auth/signin", "", gin.H{"email": "ada@example.com", "password": "long enough"})
	require.Equal(t, http.StatusOK, w.Code)
	fresh := out["access_token"].(string)

	w, out = api.do(t, http.MethodGet, "/api/v1/candidates", fresh, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{bo.id}, ids(t, out["candidates"], "user_id"))
}

func TestAuthRoutes(t *testing.T) {
	api := newTestAPI(t)
	ada := api.signUp(t, "ada@example.com")

	w, _ := api.do(t, http.MethodPost, "/api/v1/auth/signup", "", gin.H{"email": "ada@example.com", "password": "long enough"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = api.do(t, http.MethodPost, "/api/v1/auth/signup", "", gin.H{"email": "x@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = api.do(t, http.MethodPost, "/api/v1/auth/signin", "", gin.H{"email": "ada@example.com", "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, out := api.do(t, http.MethodPost, "/api/v1/auth/signin", "", gin.H{"email": "ada@example.com", "password": "long enough"})
	require.Equal(t, http.StatusOK, w.Code)
	second := out["access_token"].(string)

	w, out = api.do(t, http.MethodGet, "/api/v1/session", ada.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ada.id, out["session"].(map[string]any)["user_id"])

	w, _ = api.do(t, http.MethodPost, "/api/v1/auth/signout", ada.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodGet, "/api/v1/session", ada.token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// the other device re-establishes its session
	w, out = api.do(t, http.MethodGet, "/api/v1/session", second, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "authenticated_no_profile", out["session"].(map[string]any)["state"])
}

func TestProfileValidation(t *testing.T) {
	api := newTestAPI(t)
	ada := api.signUp(t, "ada@example.com")

	w, _ := api.do(t, http.MethodGet, "/api/v1/profile", ada.token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	for name, body := range map[string]gin.H{
		"missing name":    {"airport_code": "LHR"},
		"not iata":        {"name": "Ada", "airport_code": "LONDON"},
		"bad destination": {"name": "Ada", "airport_code": "LHR", "destination": "J1K"},
		"too young":       {"name": "Ada", "airport_code": "LHR", "age": 12},
	} {
		t.Run(name, func(t *testing.T) {
			w, _ := api.do(t, http.MethodPut, "/api/v1/profile", ada.token, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	api.onboard(t, ada, "Ada")
	w, out := api.do(t, http.MethodGet, "/api/v1/profile", ada.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := out["profile"].(map[string]any)
	assert.Equal(t, "LHR", profile["airport_code"])
	assert.Equal(t, "JFK", profile["destination"])
	assert.NotContains(t, profile, "device_token")

	w, _ = api.do(t, http.MethodPut, "/api/v1/profile/device-token", ada.token, gin.H{"token": "fcm-token"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadPhoto(t *testing.T) {
	api := newTestAPI(t)
	ada := api.signUp(t, "ada@example.com")
	api.onboard(t, ada, "Ada")

	upload := func(contentType string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="photo"; filename="me.png"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG fake"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/profile/photo", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+ada.token)
		w, _ := api.serve(t, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, upload("image/gif").Code)

	require.Equal(t, http.StatusOK, upload("image/png").Code)
	require.Equal(t, http.StatusOK, upload("image/png").Code)
	require.Len(t, api.photos.uploaded, 2)
	assert.Equal(t, []string{api.photos.uploaded[0]}, api.photos.deleted)

	_, out := api.do(t, http.MethodGet, "/api/v1/profile", ada.token, nil)
	assert.Equal(t, api.photos.uploaded[1], out["profile"].(map[string]any)["photo_url"])
}

func TestPublicRoutes(t *testing.T) {
	api := newTestAPI(t)

	w, out := api.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", out["status"])

	w, out = api.do(t, http.MethodGet, "/api/v1/airports", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["airports"], 12)

	w, _ = api.do(t, http.MethodGet, "/api/v1/matches", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
