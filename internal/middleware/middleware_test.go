package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/careflow-api/internal/model"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/httputil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubTokens map[string]*model.Principal

func (s stubTokens) ValidateToken(token string) (*model.Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return nil, apperrors.Unauthorized(nil)
}

func newAuthEngine(roles ...model.Role) *gin.Engine {
	mw := NewAuthMiddleware(stubTokens{
		"doc":   {Role: model.RoleDoctor, Subject: "DOC-0001", Name: "Dr. Grey"},
		"nurse": {Role: model.RoleNurse, Subject: "NU-0001", Name: "Nurse Joy"},
	}, "agent-key")

	r := gin.New()
	handlers := []gin.HandlerFunc{mw.Authenticate()}
	if len(roles) > 0 {
		handlers = append(handlers, mw.RequireRole(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, string(PrincipalFrom(c).Role))
	})
	r.GET("/x", handlers...)
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	r := newAuthEngine()

	tests := []struct {
		name   string
		setup  func(*http.Request)
		target string
		status int
		body   string
	}{
		{"no credentials", func(*http.Request) {}, "/x", http.StatusUnauthorized, ""},
		{"bearer", func(req *http.Request) { req.Header.Set("Authorization", "Bearer doc") }, "/x", http.StatusOK, "doctor"},
		{"lowercase scheme", func(req *http.Request) { req.Header.Set("Authorization", "bearer nurse") }, "/x", http.StatusOK, "nurse"},
		{"malformed header", func(req *http.Request) { req.Header.Set("Authorization", "doc") }, "/x", http.StatusUnauthorized, ""},
		{"unknown token", func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") }, "/x", http.StatusUnauthorized, ""},
		{"query token", func(*http.Request) {}, "/x?access_token=doc", http.StatusOK, "doctor"},
		{"service key", func(req *http.Request) { req.Header.Set(HeaderServiceKey, "agent-key") }, "/x", http.StatusOK, "service"},
		{"wrong service key", func(req *http.Request) { req.Header.Set(HeaderServiceKey, "guess") }, "/x", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			tt.setup(req)
			w := serve(r, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestServiceKeyDisabledWhenEmpty(t *testing.T) {
	mw := NewAuthMiddleware(stubTokens{}, "")
	r := gin.New()
	r.GET("/x", mw.Authenticate(), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderServiceKey, "")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderServiceKey, "anything")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}

func TestRequireRole(t *testing.T) {
	r := newAuthEngine(model.RoleDoctor)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer doc")
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer nurse")
	w := serve(r, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "permission denied", resp.Message)
	assert.Equal(t, int(apperrors.ErrForbidden), resp.Code)
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 1})
	r := gin.New()
	r.GET("/x", rl.RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	from := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = addr
		return serve(r, req).Code
	}

	assert.Equal(t, http.StatusOK, from("192.0.2.1:4000"))
	assert.Equal(t, http.StatusTooManyRequests, from("192.0.2.1:4001"))
	assert.Equal(t, http.StatusOK, from("192.0.2.2:4000"))
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderXRequestID, "req-1")
	w := serve(r, req)
	assert.Equal(t, "req-1", w.Body.String())
	assert.Equal(t, "req-1", w.Header().Get(HeaderXRequestID))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderXRequestID, strings.Repeat("a", 200))
	w = serve(r, req)
	assert.Len(t, w.Body.String(), 36)
}

func TestSecurityHeaders(t *testing.T) {
	for _, hsts := range []bool{true, false} {
		r := gin.New()
		r.Use(SecurityHeaders(hsts))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, hsts, w.Header().Get("Strict-Transport-Security") != "")
	}
}

func TestBodyLimit(t *testing.T) {
	type payload struct {
		Note string `json:"note"`
	}
	r := gin.New()
	r.Use(BodyLimit(32))
	r.POST("/x", func(c *gin.Context) {
		var p payload
		if err := c.ShouldBindJSON(&p); err != nil {
			httputil.RespondWithError(c, httputil.BindError(err))
			return
		}
		c.String(http.StatusOK, p.Note)
	})

	w := serve(r, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"note":"ok"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	big := `{"note":"` + strings.Repeat("x", 64) + `"}`
	w = serve(r, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	// Unknown length: the limit trips while decoding.
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(big))
	req.ContentLength = -1
	w = serve(r, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
