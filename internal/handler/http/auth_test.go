package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ratewatch/ratewatch/internal/auth"
	"github.com/ratewatch/ratewatch/internal/domain"
	"github.com/ratewatch/ratewatch/internal/service"
	apperrors "github.com/ratewatch/ratewatch/pkg/errors"
	"github.com/ratewatch/ratewatch/pkg/httputil"
)

// ============================================================================
// Mocks and Helpers
// ============================================================================

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

const testJWTSecret = "test-secret-key-0123456789abcdef"

func authTestService(userRepo *mockUserRepo) *service.AuthService {
	return service.NewAuthService(
		userRepo,
		auth.NewJWTManager(testJWTSecret, time.Hour),
		auth.NewLoginThrottle(3, 5*time.Second),
		auth.NewRevocationLedger(),
		time.Second,
		testLogger(),
	)
}

func setupAuthRouter(svc *service.AuthService) *chi.Mux {
	r := chi.NewRouter()
	handler := NewAuthHandler(svc, testLogger())
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Post("/login", handler.Login)
		r.With(Auth(svc)).Post("/logout", handler.Logout)
	})
	r.With(ContentTypeJSON).Post("/api/v1/users", handler.Register)
	return r
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	return resp
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func hashedUser(t *testing.T, email, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.User{ID: "user-1", Email: email, PasswordHash: string(hash)}
}

// ============================================================================
// Login Tests
// ============================================================================

func TestLogin_Success_ReturnsToken(t *testing.T) {
	userRepo := new(mockUserRepo)
	svc := authTestService(userRepo)
	router := setupAuthRouter(svc)

	user := hashedUser(t, "a@b.com", "correct-password")
	userRepo.On("GetByEmail", mock.Anything, "a@b.com").Return(user, nil)

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "a@b.com", Password: "correct-password"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, data["token"])
	userRepo.AssertExpectations(t)
}

func TestLogin_WrongPassword_Unauthorized(t *testing.T) {
	userRepo := new(mockUserRepo)
	svc := authTestService(userRepo)
	router := setupAuthRouter(svc)

	user := hashedUser(t, "a@b.com", "correct-password")
	userRepo.On("GetByEmail", mock.Anything, "a@b.com").Return(user, nil)

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "a@b.com", Password: "wrong"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_CREDENTIALS", resp.Error.Code)
}

func TestLogin_UnknownEmail_SameErrorAsWrongPassword(t *testing.T) {
	userRepo := new(mockUserRepo)
	svc := authTestService(userRepo)
	router := setupAuthRouter(svc)

	userRepo.On("GetByEmail", mock.Anything, "nobody@b.com").Return(nil, apperrors.ErrNotFound)

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "nobody@b.com", Password: "whatever"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_CREDENTIALS", resp.Error.Code)
}

func TestLogin_RepeatedFailures_Throttled(t *testing.T) {
	userRepo := new(mockUserRepo)
	svc := authTestService(userRepo)
	router := setupAuthRouter(svc)

	user := hashedUser(t, "a@b.com", "correct-password")
	userRepo.On("GetByEmail", mock.Anything, "a@b.com").Return(user, nil).Times(3)

	body := LoginRequest{Email: "a@b.com", Password: "wrong"}
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/v1/auth/login", body))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// The fourth attempt is blocked without touching the repository, even
	// with the correct password.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/v1/auth/login",
		LoginRequest{Email: "a@b.com", Password: "correct-password"}))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "THROTTLED", resp.Error.Code)
	userRepo.AssertExpectations(t)
}

func TestLogin_InvalidEmail_ValidationError(t *testing.T) {
	userRepo := new(mockUserRepo)
	router := setupAuthRouter(authTestService(userRepo))

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "not-an-email", Password: "x"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "email")
	userRepo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestLogin_MissingContentType_UnsupportedMediaType(t *testing.T) {
	userRepo := new(mockUserRepo)
	router := setupAuthRouter(authTestService(userRepo))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// ============================================================================
// Logout Tests
// ============================================================================

func TestLogout_RevokesToken(t *testing.T) {
	userRepo := new(mockUserRepo)
	svc := authTestService(userRepo)
	router := setupAuthRouter(svc)

	user := hashedUser(t, "a@b.com", "correct-password")
	userRepo.On("GetByEmail", mock.Anything, "a@b.com").Return(user, nil)

	token, err := svc.Authenticate(context.Background(), "a@b.com", "correct-password")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	// The same token is rejected from now on.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TOKEN_REVOKED", resp.Error.Code)
}

func TestLogout_MissingToken_Unauthorized(t *testing.T) {
	userRepo := new(mockUserRepo)
	router := setupAuthRouter(authTestService(userRepo))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================================================
// Register Tests
// ============================================================================

func TestRegister_Success_Created(t *testing.T) {
	userRepo := new(mockUserRepo)
	router := setupAuthRouter(authTestService(userRepo))

	userRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)

	req := jsonRequest(t, http.MethodPost, "/api/v1/users", RegisterRequest{Email: "new@b.com", Password: "long-enough-password"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "new@b.com", data["email"])
	assert.NotContains(t, data, "password_hash")
	userRepo.AssertExpectations(t)
}

func TestRegister_DuplicateEmail_Conflict(t *testing.T) {
	userRepo := new(mockUserRepo)
	router := setupAuthRouter(authTestService(userRepo))

	userRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).
		Return(apperrors.AlreadyExists("user", "email", "dup@b.com"))

	req := jsonRequest(t, http.MethodPost, "/api/v1/users", RegisterRequest{Email: "dup@b.com", Password: "long-enough-password"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ALREADY_EXISTS", resp.Error.Code)
}

func TestRegister_ShortPassword_ValidationError(t *testing.T) {
	userRepo := new(mockUserRepo)
	router := setupAuthRouter(authTestService(userRepo))

	req := jsonRequest(t, http.MethodPost, "/api/v1/users", RegisterRequest{Email: "new@b.com", Password: "short"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
