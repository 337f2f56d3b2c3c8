package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/AbdalrahmanMG/book-shop/internal/app"
	"github.com/AbdalrahmanMG/book-shop/internal/catalog"
	"github.com/AbdalrahmanMG/book-shop/pkg/domain"
	"github.com/AbdalrahmanMG/book-shop/pkg/storage"
	"github.com/AbdalrahmanMG/book-shop/pkg/store"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *store.MemoryStore) {
	t.Helper()
	m := store.NewMemoryStore()
	m.SeedUsers([]domain.User{
		{ID: 1, Name: "Omar", Email: "omar@example.com", Password: "secret123"},
		{ID: 2, Name: "Sara", Email: "sara@example.com", Password: "hunter22"},
	})
	images, err := storage.NewDiskImageStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("NewDiskImageStore: %v", err)
	}
	core, err := app.New(app.Config{
		Store:    m,
		Sessions: store.NewMemorySessionStore(time.Hour),
		Images:   images,
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	cfg.App = core
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	return srv, m
}

func doLogin(t *testing.T, srv *Server, email, password string) *http.Cookie {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == "auth" && c.Value != "" {
			if !c.HttpOnly {
				t.Error("auth cookie must be HttpOnly")
			}
			return c
		}
	}
	t.Fatal("no auth cookie set on login")
	return nil
}

func TestLoginSetsCookieAndReturnsSafeUser(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	cookie := doLogin(t, srv, "omar@example.com", "secret123")

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); strings.Contains(body, "password") {
		t.Fatalf("password leaked in response: %s", body)
	}
	var user domain.SafeUser
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.ID != 1 || user.Email != "omar@example.com" {
		t.Fatalf("got %+v", user)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	body := `{"email":"omar@example.com","password":"wrong-password"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Code      string `json:"code"`
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "AUTH_INVALID_CREDENTIALS" {
		t.Errorf("code = %q", resp.Code)
	}
	if resp.RequestID == "" {
		t.Error("error body missing requestId")
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/users/me"},
		{http.MethodGet, "/api/books"},
		{http.MethodGet, "/api/books/1"},
		{http.MethodDelete, "/api/books/1"},
	}
	for _, tc := range paths {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestLogoutClearsSession(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	cookie := doLogin(t, srv, "omar@example.com", "secret123")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status %d", rec.Code)
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "auth" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("logout did not clear the auth cookie")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale session still accepted: status %d", rec.Code)
	}
}

func bookForm(t *testing.T, fields map[string]string, withThumb bool) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField %s: %v", k, err)
		}
	}
	if withThumb {
		fw, err := mw.CreateFormFile("thumbnail", "cover.png")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		// Tiny but non-empty payload; the extension carries the type.
		if _, err := fw.Write([]byte("\x89PNG\r\n\x1a\n fake image bytes")); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestBookLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	cookie := doLogin(t, srv, "omar@example.com", "secret123")

	body, contentType := bookForm(t, map[string]string{
		"title":       "The Go Programming Language",
		"description": "The reference",
		"author":      "Donovan & Kernighan",
		"category":    "Technology",
		"price":       "39.99",
	}, true)
	req := httptest.NewRequest(http.MethodPost, "/api/books", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Book
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID != 1 || created.Price != 39.99 || created.OwnerID != 1 {
		t.Fatalf("got %+v", created)
	}
	if !strings.HasPrefix(created.Thumbnail, "/uploads/") {
		t.Fatalf("thumbnail url %q", created.Thumbnail)
	}

	// Read it back.
	req = httptest.NewRequest(http.MethodGet, "/api/books/1", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}

	// Patch the price only.
	body, contentType = bookForm(t, map[string]string{"price": "29.99"}, false)
	req = httptest.NewRequest(http.MethodPatch, "/api/books/1", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status %d: %s", rec.Code, rec.Body.String())
	}
	var patched domain.Book
	if err := json.Unmarshal(rec.Body.Bytes(), &patched); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if patched.Price != 29.99 || patched.Title != created.Title {
		t.Fatalf("got %+v", patched)
	}

	// A different user cannot delete it.
	other := doLogin(t, srv, "sara@example.com", "hunter22")
	req = httptest.NewRequest(http.MethodDelete, "/api/books/1", nil)
	req.AddCookie(other)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign delete status %d", rec.Code)
	}

	// The owner can.
	req = httptest.NewRequest(http.MethodDelete, "/api/books/1", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/books/1", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status %d", rec.Code)
	}
}

func TestCreateBookRejectsInvalidInput(t *testing.T) {
	srv, m := newTestServer(t, Config{})
	cookie := doLogin(t, srv, "omar@example.com", "secret123")

	body, contentType := bookForm(t, map[string]string{
		"title":       "Bad Category",
		"description": "d",
		"author":      "a",
		"category":    "Cooking",
		"price":       "10",
	}, false)
	req := httptest.NewRequest(http.MethodPost, "/api/books", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	books, _ := m.ScanBooks(req.Context(), store.BookFilter{}, store.OrderNone)
	if len(books) != 0 {
		t.Fatalf("invalid input persisted: %+v", books)
	}
}

func TestListBooksQueryParams(t *testing.T) {
	srv, _ := newTestServer(t, Config{DefaultPageSize: 2})
	omar := doLogin(t, srv, "omar@example.com", "secret123")
	sara := doLogin(t, srv, "sara@example.com", "hunter22")

	titles := []string{"Zebra", "Apple", "Mango", "Banana", "Cherry"}
	for i, title := range titles {
		cookie := omar
		if i%2 == 1 {
			cookie = sara
		}
		body, contentType := bookForm(t, map[string]string{
			"title":       title,
			"description": "d",
			"author":      "a",
			"category":    "Fantasy",
			"price":       "9.99",
		}, false)
		req := httptest.NewRequest(http.MethodPost, "/api/books", body)
		req.Header.Set("Content-Type", contentType)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %q: %d %s", title, rec.Code, rec.Body.String())
		}
	}

	get := func(url string, cookie *http.Cookie) catalog.Page {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: %d %s", url, rec.Code, rec.Body.String())
		}
		var page catalog.Page
		if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
		return page
	}

	page := get("/api/books?sort=asc&pageSize=2", omar)
	if page.Total != 5 || page.TotalPages != 3 {
		t.Fatalf("got %+v", page)
	}
	if page.Items[0].Title != "Apple" || page.Items[1].Title != "Banana" {
		t.Fatalf("got %+v", page.Items)
	}

	// Server default page size applies when the param is absent.
	if got := get("/api/books", omar); len(got.Items) != 2 {
		t.Fatalf("default page size not applied: %d items", len(got.Items))
	}

	if got := get("/api/books?search=zeb", omar); got.Total != 1 || got.Items[0].Title != "Zebra" {
		t.Fatalf("search: %+v", got)
	}

	mine := get("/api/books?owner=me&pageSize=10", sara)
	if mine.Total != 2 {
		t.Fatalf("owner=me for sara: %+v", mine)
	}
	for _, b := range mine.Items {
		if b.OwnerID != 2 {
			t.Fatalf("foreign book in owner=me: %+v", b)
		}
	}

	beyond := get("/api/books?page=9&pageSize=2", omar)
	if len(beyond.Items) != 0 || beyond.Total != 5 || beyond.TotalPages != 3 {
		t.Fatalf("page beyond end: %+v", beyond)
	}
}

func TestUpdateProfileOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	cookie := doLogin(t, srv, "omar@example.com", "secret123")

	req := httptest.NewRequest(http.MethodPatch, "/api/users/me",
		strings.NewReader(`{"name":"Omar K","email":"omar.k@example.com"}`))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var user domain.SafeUser
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.Name != "Omar K" || user.Email != "omar.k@example.com" {
		t.Fatalf("got %+v", user)
	}
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	srv, _ := newTestServer(t, Config{
		RedisAddr:               mr.Addr(),
		LoginRateLimitPerMinute: 2,
	})

	attempt := func() int {
		body := `{"email":"omar@example.com","password":"wrong-password"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.RemoteAddr = "203.0.113.5:4711"
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		return rec.Code
	}
	if code := attempt(); code != http.StatusUnauthorized {
		t.Fatalf("attempt 1: %d", code)
	}
	if code := attempt(); code != http.StatusUnauthorized {
		t.Fatalf("attempt 2: %d", code)
	}
	if code := attempt(); code != http.StatusTooManyRequests {
		t.Fatalf("attempt 3 should be limited, got %d", code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("request id header missing")
	}
}
