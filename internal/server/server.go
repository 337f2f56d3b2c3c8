// Package server exposes the book-shop JSON API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AbdalrahmanMG/book-shop/internal/app"
	"github.com/AbdalrahmanMG/book-shop/internal/catalog"
	"github.com/AbdalrahmanMG/book-shop/internal/ratelimit"
	"github.com/AbdalrahmanMG/book-shop/internal/util"
	"github.com/AbdalrahmanMG/book-shop/pkg/domain"
	"github.com/AbdalrahmanMG/book-shop/pkg/storage"
	"github.com/AbdalrahmanMG/book-shop/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	AuthCookieName  string
	CookieSecure    bool
	SessionMaxAge   int // seconds
	MaxUploadBytes  int64
	DefaultPageSize int
	CORSOrigin      string
	TrustProxy      bool

	RedisAddr               string
	RedisPassword           string
	LoginRateLimitPerMinute int
}

// Server exposes HTTP endpoints for the book shop.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	cookieName     string
	cookieSecure   bool
	sessionMaxAge  int
	maxUploadBytes int64
	pageSize       int
	corsOrigin     string
	trustProxy     bool
	loginLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	cookieName := cfg.AuthCookieName
	if cookieName == "" {
		cookieName = "auth"
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = storage.MaxImageBytes
	}
	pageSize := cfg.DefaultPageSize
	if pageSize <= 0 {
		pageSize = 12
	}
	sessionMaxAge := cfg.SessionMaxAge
	if sessionMaxAge <= 0 {
		sessionMaxAge = 60 * 60 * 24 * 7
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		cookieName:     cookieName,
		cookieSecure:   cfg.CookieSecure,
		sessionMaxAge:  sessionMaxAge,
		maxUploadBytes: maxUploadBytes,
		pageSize:       pageSize,
		corsOrigin:     cfg.CORSOrigin,
		trustProxy:     cfg.TrustProxy,
	}
	if cfg.LoginRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "bookshop:ratelimit:login",
			cfg.LoginRateLimitPerMinute, time.Minute,
		)
		if err != nil {
			return nil, err
		}
		s.loginLimiter = limiter
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with middleware applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.corsOrigin, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.Handle("/api/users/me", s.withUser(s.handleMe))
	s.mux.Handle("/api/books", s.withUser(s.handleBooks))
	s.mux.Handle("/api/books/", s.withUser(s.handleBookByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.SafeUser)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.sessionUser(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) sessionUser(r *http.Request) (domain.SafeUser, bool) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return domain.SafeUser{}, false
	}
	return s.app.CurrentUser(r.Context(), cookie.Value)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.loginLimiter != nil && !s.loginLimiter.Allow(util.ClientIP(r, s.trustProxy)) {
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		util.LoggerFromContext(r.Context()).Error("login failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.setAuthCookie(w, token, s.sessionMaxAge)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if cookie, err := r.Cookie(s.cookieName); err == nil && cookie.Value != "" {
		if err := s.app.Logout(cookie.Value); err != nil {
			util.LoggerFromContext(r.Context()).Error("logout failed", "err", err)
		}
	}
	s.setAuthCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) setAuthCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.SafeUser) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		var req struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		updated, err := s.app.UpdateProfile(r.Context(), user.ID, req.Name, req.Email)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, user domain.SafeUser) {
	switch r.Method {
	case http.MethodGet:
		s.handleListBooks(w, r, user)
	case http.MethodPost:
		s.handleAddBook(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request, user domain.SafeUser) {
	q := r.URL.Query()
	params := catalog.Params{
		Page:     atoiDefault(q.Get("page"), 1),
		PageSize: atoiDefault(q.Get("pageSize"), s.pageSize),
		Search:   q.Get("search"),
		Sort:     catalog.ParseSort(q.Get("sort")),
		Category: q.Get("category"),
	}
	if q.Get("owner") == "me" {
		owner := user.ID
		params.OwnerID = &owner
	}
	writeJSON(w, http.StatusOK, s.app.ListBooks(r.Context(), params))
}

func (s *Server) handleAddBook(w http.ResponseWriter, r *http.Request, user domain.SafeUser) {
	thumb, ok := s.parseBookForm(w, r)
	if !ok {
		return
	}
	input := app.BookInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Author:      r.FormValue("author"),
		Category:    r.FormValue("category"),
		Price:       r.FormValue("price"),
	}
	book, err := s.app.AddBook(r.Context(), user.ID, input, thumb)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// /api/books/{id}
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, user domain.SafeUser) {
	rawID := strings.TrimPrefix(r.URL.Path, "/api/books/")
	if rawID == "" || strings.Contains(rawID, "/") {
		notFound(w, "not found")
		return
	}
	id, err := strconv.Atoi(rawID)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	switch r.Method {
	case http.MethodGet:
		book, ok, err := s.app.GetBook(r.Context(), id)
		if err != nil {
			util.LoggerFromContext(r.Context()).Error("get book", "id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !ok {
			notFound(w, "book not found")
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPatch:
		s.handleUpdateBook(w, r, user, id)
	case http.MethodDelete:
		if err := s.app.DeleteBook(r.Context(), user.ID, id); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, user domain.SafeUser, id int) {
	thumb, ok := s.parseBookForm(w, r)
	if !ok {
		return
	}
	input := app.BookPatchInput{
		Title:       formValuePtr(r, "title"),
		Description: formValuePtr(r, "description"),
		Author:      formValuePtr(r, "author"),
		Category:    formValuePtr(r, "category"),
		Price:       formValuePtr(r, "price"),
	}
	book, err := s.app.UpdateBook(r.Context(), user.ID, id, input, thumb)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// parseBookForm parses the multipart body and extracts the optional
// thumbnail. It writes the error response itself when parsing fails.
func (s *Server) parseBookForm(w http.ResponseWriter, r *http.Request) (*app.Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return nil, false
	}
	file, header, err := r.FormFile("thumbnail")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, true
		}
		writeError(w, http.StatusBadRequest, "invalid thumbnail upload")
		return nil, false
	}
	return &app.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
	}, true
}

// formValuePtr distinguishes an omitted field (nil) from a supplied one.
func formValuePtr(r *http.Request, key string) *string {
	if r.MultipartForm == nil {
		return nil
	}
	values, ok := r.MultipartForm.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *store.ValidationError
	var ue *storage.UploadError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &ue):
		writeError(w, http.StatusBadRequest, ue.Error())
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		// Storage and unknown failures: log details, return a generic
		// message. Mutation errors are never downgraded to success.
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func atoiDefault(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_REQUIRED"
	case message == "invalid credentials":
		return "AUTH_INVALID_CREDENTIALS"
	case message == "too many login attempts":
		return "AUTH_RATE_LIMITED"
	case message == "forbidden":
		return "FORBIDDEN"
	case strings.Contains(message, "not found"):
		return "NOT_FOUND"
	case strings.HasPrefix(message, "upload:"):
		return "UPLOAD_FAILED"
	case strings.HasPrefix(message, "invalid "):
		return "VALIDATION_FAILED"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	}
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_FAILED"
	case http.StatusUnauthorized:
		return "AUTH_REQUIRED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusTooManyRequests:
		return "AUTH_RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
