package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"photogallery/access"
	"photogallery/auth"
	"photogallery/derivative"
	"photogallery/gallery"
	"photogallery/mail"
	"photogallery/models"
	"photogallery/processing"
	"photogallery/storage"
	"photogallery/transform"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type captureMailer struct {
	sent []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type testServer struct {
	engine  *gin.Engine
	db      *gorm.DB
	store   *storage.DiskStorage
	server  *Server
	mailer  *captureMailer
	admin   *models.User
	user    *models.User
	private *models.Album
	public  *models.Album
}

func newTestServer(t *testing.T, transformer transform.Transformer) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Init(db))
	store, err := storage.NewDiskStorage(&storage.Bucket{Path: t.TempDir()})
	require.NoError(t, err)

	grants := &models.Grants{DB: db}
	cache := derivative.NewCache(store, derivative.DefaultPrefix, nil)
	mailer := &captureMailer{}
	users := auth.NewUsers(db, mailer, "http://gallery.test", 15*time.Minute, nil)
	server := &Server{
		Store:       store,
		Policy:      access.NewPolicy(db, grants),
		Cache:       cache,
		Transformer: transformer,
		Gallery:     gallery.NewService(db, store, cache, grants, nil),
		Ingester: processing.NewIngester(db, store, transformer, processing.Options{
			MaxSize: 1 << 20, MaxEdge: 4096, PreviewEdge: 300, Format: "jpeg", Quality: 85,
		}, nil),
		Users:           users,
		DefaultPageSize: gallery.DefaultPageSize,
		MaxPageSize:     gallery.MaxPageSize,
		OutputFormat:    "jpeg",
		OutputQuality:   85,
	}
	engine := gin.New()
	engine.Use(sessions.Sessions(auth.SessionCookieName, cookie.NewStore([]byte("test-secret"))))
	server.Register(engine)

	ts := &testServer{engine: engine, db: db, store: store, server: server, mailer: mailer}
	ts.admin, err = users.Create(ctx, auth.NewUser{Email: "admin@example.com", Password: "password1", Name: "Admin", Role: models.RoleAdmin})
	require.NoError(t, err)
	ts.user, err = users.Register(ctx, "user@example.com", "password1", "User")
	require.NoError(t, err)
	ts.public, err = server.Gallery.CreateAlbum(ctx, "Holidays", nil)
	require.NoError(t, err)
	private := false
	ts.private, err = server.Gallery.CreateAlbum(ctx, "Family", &private)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "albums/holidays/a.png", pngBytes(t, 64, 48), "image/png"))
	require.NoError(t, store.Put(ctx, "albums/family/b.png", pngBytes(t, 64, 48), "image/png"))
	return ts
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (ts *testServer) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func (ts *testServer) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return ts.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func (ts *testServer) sendJSON(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(req, cookies...)
}

func (ts *testServer) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	w := ts.sendJSON(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": "password1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := Response{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestServeImage(t *testing.T) {
	ts := newTestServer(t, transform.Identity{})
	userCookie := ts.login(t, "user@example.com")
	adminCookie := ts.login(t, "admin@example.com")

	tests := []struct {
		name    string
		path    string
		cookies []*http.Cookie
		status  int
	}{
		{"public album anonymous", "/images/albums/holidays/a.png", nil, http.StatusOK},
		{"private album anonymous", "/images/albums/family/b.png", nil, http.StatusUnauthorized},
		{"private album without grant", "/images/albums/family/b.png", []*http.Cookie{userCookie}, http.StatusForbidden},
		{"private album as admin", "/images/albums/family/b.png", []*http.Cookie{adminCookie}, http.StatusOK},
		{"unknown album", "/images/albums/nope/c.png", nil, http.StatusNotFound},
		{"missing object", "/images/albums/holidays/missing.png", nil, http.StatusNotFound},
		{"traversal", "/images/albums/holidays/../family/b.png", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.get(tt.path, tt.cookies...)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status == http.StatusOK {
				assert.Equal(t, "default-src 'none';", w.Header().Get("Content-Security-Policy"))
				assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestServeImageAfterGrant(t *testing.T) {
	ts := newTestServer(t, transform.Identity{})
	userCookie := ts.login(t, "user@example.com")
	adminCookie := ts.login(t, "admin@example.com")

	w := ts.sendJSON(http.MethodPost, "/api/albums/family/access", map[string]uint64{"userId": ts.user.ID}, adminCookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusOK, ts.get("/images/albums/family/b.png", userCookie).Code)

	w = ts.sendJSON(http.MethodPost, "/api/albums/family/access", map[string]uint64{"userId": ts.user.ID}, adminCookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "user already has access to this album", errorOf(t, w))
}

func TestServeDerivative(t *testing.T) {
	ts := newTestServer(t, transform.NewNative("jpeg", 85))
	path := "/private/cdn-cgi/image/w=32,h=24,fit=cover/albums/holidays/a.png"

	first := ts.get(path)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, "private, max-age=604800", first.Header().Get("Cache-Control"))
	assert.Equal(t, "image/jpeg", first.Header().Get("Content-Type"))
	cfg, _, err := image.DecodeConfig(bytes.NewReader(first.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 24, cfg.Height)

	// same parameters in another order share the cache entry
	second := ts.get("/private/cdn-cgi/image/fit=cover,h=24,w=32/albums/holidays/a.png")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())

	_, err = ts.store.Get(context.Background(), "resized/fit=cover,h=24,w=32/albums/holidays/a.png")
	assert.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"bad width", "/private/cdn-cgi/image/w=abc/albums/holidays/a.png", http.StatusBadRequest},
		{"width over max edge", "/private/cdn-cgi/image/w=6000,h=6000,fit=pad/albums/holidays/a.png", http.StatusBadRequest},
		{"dpr over max", "/private/cdn-cgi/image/w=100,dpr=10/albums/holidays/a.png", http.StatusBadRequest},
		{"missing original", "/private/cdn-cgi/image/w=10/albums/holidays/nope.png", http.StatusNotFound},
		{"private album anonymous", "/private/cdn-cgi/image/w=10/albums/family/b.png", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, ts.get(tt.path).Code)
		})
	}
}

func TestServeDerivativeDisabledTransforms(t *testing.T) {
	ts := newTestServer(t, transform.Identity{})
	w := ts.get("/private/cdn-cgi/image/w=10/albums/holidays/a.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pngBytes(t, 64, 48), w.Body.Bytes())

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"bad width", "/private/cdn-cgi/image/w=abc/albums/holidays/a.png", http.StatusBadRequest},
		{"negative height", "/private/cdn-cgi/image/h=-5/albums/holidays/a.png", http.StatusBadRequest},
		{"width over max edge", "/private/cdn-cgi/image/w=6000/albums/holidays/a.png", http.StatusBadRequest},
		{"fractional width", "/private/cdn-cgi/image/w=1.5/albums/holidays/a.png", http.StatusBadRequest},
		{"valid parameters", "/private/cdn-cgi/image/w=10,fit=cover/albums/holidays/a.png", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, ts.get(tt.path).Code)
		})
	}

	listing, err := ts.store.List(context.Background(), storage.ListOptions{Prefix: "resized/"})
	require.NoError(t, err)
	assert.Empty(t, listing.Blobs)
}

func TestAlbumEndpoints(t *testing.T) {
	ts := newTestServer(t, transform.Identity{})
	adminCookie := ts.login(t, "admin@example.com")
	userCookie := ts.login(t, "user@example.com")

	w := ts.sendJSON(http.MethodPost, "/api/albums", map[string]any{"name": "Summer 2024!"}, userCookie)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.sendJSON(http.MethodPost, "/api/albums", map[string]any{"name": "Summer 2024!"}, adminCookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := AlbumResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "summer-2024", created.Album.ID)
	assert.Equal(t, "albums/summer-2024", created.Album.Path)
	assert.True(t, created.Album.IsPublic)

	w = ts.sendJSON(http.MethodPost, "/api/albums", map[string]any{"name": "summer 2024"}, adminCookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	listNames := func(cookies ...*http.Cookie) []string {
		w := ts.get("/api/albums", cookies...)
		require.Equal(t, http.StatusOK, w.Code)
		views := []gallery.AlbumView{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
		names := []string{}
		for _, v := range views {
			names = append(names, v.ID)
		}
		return names
	}
	assert.NotContains(t, listNames(), "family")
	assert.NotContains(t, listNames(userCookie), "family")
	assert.Contains(t, listNames(adminCookie), "family")

	assert.Equal(t, http.StatusUnauthorized, ts.get("/api/albums/family").Code)
	assert.Equal(t, http.StatusOK, ts.get("/api/albums/family", adminCookie).Code)
	assert.Equal(t, http.StatusNotFound, ts.get("/api/albums/nope").Code)

	w = ts.sendJSON(http.MethodPut, "/api/albums/family", map[string]any{"isPublic": true}, adminCookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, ts.get("/api/albums/family").Code)

	w = ts.do(httptest.NewRequest(http.MethodDelete, "/api/albums/family", nil), adminCookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, ts.get("/images/albums/family/b.png").Code)
}

func TestImageUploadListAndDelete(t *testing.T) {
	ts := newTestServer(t, transform.Identity{})
	adminCookie := ts.login(t, "admin@example.com")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range []string{"one.png", "notes.txt"} {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		if strings.HasSuffix(name, ".png") {
			_, err = part.Write(pngBytes(t, 20, 10))
		} else {
			_, err = part.Write([]byte("just text"))
		}
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/albums/holidays/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := ts.do(req, adminCookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	results := []processing.Result{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.NotEmpty(t, results[1].Error)

	w = ts.get("/api/albums/holidays/images?page=1&pageSize=5")
	require.Equal(t, http.StatusOK, w.Code)
	page := gallery.ImagePage{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Equal(t, int64(1), page.TotalCount)
	assert.Equal(t, results[0].Path, page.Images[0].ID)
	assert.Equal(t, http.StatusOK, ts.get(page.Images[0].PreviewURL).Code)

	w = ts.do(httptest.NewRequest(http.MethodDelete, "/api/albums/holidays/images/"+results[0].Path, nil), adminCookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusNotFound, ts.get(page.Images[0].URL).Code)

	w = ts.do(httptest.NewRequest(http.MethodPost, "/api/albums/holidays/images", nil), adminCookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginLinkFlow(t *testing.T) {
	ts := newTestServer(t, transform.Identity{})

	w := ts.sendJSON(http.MethodPost, "/api/auth/request-code", map[string]string{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.sendJSON(http.MethodPost, "/api/auth/request-code", map[string]string{"email": "user@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, ts.mailer.sent, 1)

	w = ts.get("/api/auth/verify?email=user%40example.com&token=wrong")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth/login?error=invalid_verification&email=user%40example.com", w.Header().Get("Location"))

	html := ts.mailer.sent[0].HTML
	start := strings.Index(html, "/api/auth/verify?")
	end := strings.Index(html[start:], `"`)
	link := strings.ReplaceAll(html[start:start+end], "&amp;", "&")
	w = ts.get(link)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/?login_success=true", w.Header().Get("Location"))

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	me := ts.get("/api/auth/me", session)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"email":"user@example.com"`)

	// the link is single use
	assert.Contains(t, ts.get(link).Header().Get("Location"), "error=invalid_verification")
}

func TestAdminUsers(t *testing.T) {
	ts := newTestServer(t, transform.Identity{})
	adminCookie := ts.login(t, "admin@example.com")
	userCookie := ts.login(t, "user@example.com")

	assert.Equal(t, http.StatusUnauthorized, ts.get("/api/admin/users").Code)
	assert.Equal(t, http.StatusForbidden, ts.get("/api/admin/users", userCookie).Code)

	w := ts.sendJSON(http.MethodPost, "/api/admin/users",
		map[string]string{"email": "new@example.com", "password": "password1", "name": "New", "role": "admin"}, adminCookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"role":"admin"`)

	w = ts.sendJSON(http.MethodPost, "/api/admin/users",
		map[string]string{"email": "new@example.com", "password": "password1", "name": "New"}, adminCookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User with this email already exists", errorOf(t, w))

	w = ts.get("/api/admin/users-for-album-access", adminCookie)
	require.Equal(t, http.StatusOK, w.Code)
	eligible := []UserInfo{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &eligible))
	require.Len(t, eligible, 1)
	assert.Equal(t, ts.user.ID, eligible[0].ID)
}
