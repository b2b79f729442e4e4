package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMux(t *testing.T, env *testEnv, limits RouteLimits) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(env.svc, true).RegisterRoutes(mux, limits)
	return mux
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestAliceScenario(t *testing.T) {
	env := newTestEnv(t, DefaultServiceConfig())
	mux := newTestMux(t, env, RouteLimits{})

	rec, body := doJSON(t, mux, http.MethodPost, "/api/auth/register",
		map[string]string{"name": "Alice", "email": "alice@x.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.NotContains(t, body, "token")
	user := body["user"].(map[string]any)
	assert.Equal(t, false, user["isEmailVerified"])

	rec, body = doJSON(t, mux, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "alice@x.com", "password": "secret1"}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "error", body["status"])

	rec, body = doJSON(t, mux, http.MethodGet, "/api/auth/verify-email/"+env.notifier.verification["alice@x.com"], nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["token"])

	rec, body = doJSON(t, mux, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "alice@x.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	rec, body = doJSON(t, mux, http.MethodGet, "/api/auth/me", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	me := body["user"].(map[string]any)
	assert.Equal(t, "Alice", me["name"])
	assert.Equal(t, "alice@x.com", me["email"])

	raw := strings.ToLower(rec.Body.String())
	assert.NotContains(t, raw, "password")
	assert.NotContains(t, raw, "verificationtoken")
	assert.NotContains(t, raw, "reset")
}

func TestHandlerErrorStatuses(t *testing.T) {
	env := newTestEnv(t, DefaultServiceConfig())
	env.registerVerified(t, "Bob", "bob@x.com", "secret1")
	mux := newTestMux(t, env, RouteLimits{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		msg    string
	}{
		{"register duplicate", "POST", "/api/auth/register",
			map[string]string{"name": "B", "email": "BOB@x.com", "password": "secret1"}, 400, "Email already registered."},
		{"register invalid", "POST", "/api/auth/register",
			map[string]string{"name": "B"}, 400, "Please provide all required fields."},
		{"login missing", "POST", "/api/auth/login",
			map[string]string{"email": "bob@x.com"}, 400, "Please provide both email and password."},
		{"login unknown", "POST", "/api/auth/login",
			map[string]string{"email": "zed@x.com", "password": "secret1"}, 404, "User not found."},
		{"login wrong password", "POST", "/api/auth/login",
			map[string]string{"email": "bob@x.com", "password": "nope123"}, 401, "Invalid email or password."},
		{"verify unknown", "GET", "/api/auth/verify-email/" + strings.Repeat("ab", 32), nil, 404, "Invalid or expired verification code."},
		{"reset request missing", "POST", "/api/auth/request-password-reset",
			map[string]string{}, 400, "Email is required."},
		{"reset unknown token", "POST", "/api/auth/reset-password",
			map[string]string{"resetToken": strings.Repeat("cd", 32), "newPassword": "secret9"}, 404, "Invalid or expired reset token."},
		{"resend verified", "POST", "/api/auth/resend-verification",
			map[string]string{"email": "bob@x.com"}, 400, "Email is already verified."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := doJSON(t, mux, tt.method, tt.path, tt.body, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, tt.msg, body["message"])
		})
	}
}

func TestHandlerInvalidBody(t *testing.T) {
	env := newTestEnv(t, DefaultServiceConfig())
	mux := newTestMux(t, env, RouteLimits{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body.")
}

func TestMiddlewareRejects(t *testing.T) {
	env := newTestEnv(t, DefaultServiceConfig())
	mux := newTestMux(t, env, RouteLimits{})

	tests := []struct {
		name   string
		header string
		msg    string
	}{
		{"no header", "", "Authentication invalid. No token provided."},
		{"wrong scheme", "Token abc", "Authentication invalid. No token provided."},
		{"empty bearer", "Bearer ", "Authentication invalid. No token provided."},
		{"bad token", "Bearer abc.def.ghi", "Authentication invalid. Token verification failed."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.msg, body["message"])
		})
	}
}

func TestMiddlewareAttachesPublicView(t *testing.T) {
	env := newTestEnv(t, DefaultServiceConfig())
	env.registerVerified(t, "Bob", "bob@x.com", "secret1")
	_, err := env.svc.RequestPasswordReset(context.Background(), EmailInput{Email: "bob@x.com"})
	require.NoError(t, err)
	res, err := env.svc.Login(context.Background(), LoginInput{Email: "bob@x.com", Password: "secret1"})
	require.NoError(t, err)

	var attached []byte
	h := Middleware(env.svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetAuthUser(r.Context())
		require.NotNil(t, user)
		attached, _ = json.Marshal(user)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotEmpty(t, attached)
	assert.Contains(t, string(attached), `"email":"bob@x.com"`)
	assert.NotContains(t, string(attached), "$2a$")
	assert.NotContains(t, string(attached), env.notifier.reset["bob@x.com"])
}

func TestLogoutClearsCookie(t *testing.T) {
	env := newTestEnv(t, DefaultServiceConfig())
	env.registerVerified(t, "Bob", "bob@x.com", "secret1")
	mux := newTestMux(t, env, RouteLimits{})

	_, body := doJSON(t, mux, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "bob@x.com", "password": "secret1"}, "")
	token := body["token"].(string)

	rec, body := doJSON(t, mux, http.MethodPost, "/api/auth/logout", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User logged out successfully.", body["message"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "token", c.Name)
	assert.Empty(t, c.Value)
	assert.True(t, c.MaxAge < 0)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)

	// 无服务端吊销，令牌仍然有效
	rec, _ = doJSON(t, mux, http.MethodGet, "/api/auth/me", nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouteLimitsApplied(t *testing.T) {
	env := newTestEnv(t, DefaultServiceConfig())
	var loginHits, registerHits atomic.Int32
	counter := func(n *atomic.Int32) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n.Add(1)
				next.ServeHTTP(w, r)
			})
		}
	}
	mux := newTestMux(t, env, RouteLimits{Login: counter(&loginHits), Register: counter(&registerHits)})

	doJSON(t, mux, http.MethodPost, "/api/auth/login", map[string]string{}, "")
	doJSON(t, mux, http.MethodPost, "/api/auth/register", map[string]string{}, "")
	doJSON(t, mux, http.MethodPost, "/api/auth/resend-verification", map[string]string{}, "")
	doJSON(t, mux, http.MethodPost, "/api/auth/request-password-reset", map[string]string{}, "")

	assert.Equal(t, int32(1), loginHits.Load())
	assert.Equal(t, int32(2), registerHits.Load())
}
