package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"loan-ledger/internal/core/auth"
	"loan-ledger/internal/domain"
	resp "loan-ledger/internal/transport/http/response"
)

func init() { gin.SetMode(gin.TestMode) }

func do(t *testing.T, r http.Handler, req *http.Request) resp.Resp {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var out resp.Resp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func newJWTer(t *testing.T) *auth.JWTer {
	t.Helper()
	j, err := auth.NewJWTer("middleware-test-secret", "loan-ledger", time.Hour)
	require.NoError(t, err)
	return j
}

type fakeUsers map[uuid.UUID]domain.User

func (f fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func TestAuthJWTAndBorrower(t *testing.T) {
	j := newJWTer(t)
	alice := domain.User{ID: uuid.New(), Name: "Alice"}
	users := fakeUsers{alice.ID: alice}

	r := gin.New()
	r.GET("/me", AuthJWT(j, auth.RoleBorrower), Borrower(users), func(c *gin.Context) {
		u, ok := BorrowerFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, resp.OK(u))
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	assert.Equal(t, resp.CodeUnauthorized, do(t, r, req).Code)

	tok, _, err := j.Issue(alice.ID.String(), auth.RoleBorrower)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	out := do(t, r, req)
	assert.Equal(t, resp.CodeOK, out.Code)
	assert.Equal(t, "Alice", out.Data.(map[string]any)["name"])

	admin, _, err := j.Issue("admin", auth.RoleAdmin)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	assert.Equal(t, resp.CodeForbidden, do(t, r, req).Code)

	ghost, _, err := j.Issue(uuid.NewString(), auth.RoleBorrower)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+ghost)
	assert.Equal(t, resp.CodeUnauthorized, do(t, r, req).Code)
}

func TestRateLimitPerIP(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitPerIP(0.001, 2, time.Minute))
	r.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, resp.OK(nil)) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		codes = append(codes, do(t, r, req).Code)
	}
	assert.Equal(t, []int{resp.CodeOK, resp.CodeOK, resp.CodeTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	assert.Equal(t, resp.CodeOK, do(t, r, req).Code)
}

func TestRecoveryKeepsEnvelope(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(KeyRequestID))
	var out resp.Resp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, resp.CodeServerError, out.Code)
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(10 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	out := do(t, r, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, resp.CodeTimeout, out.Code)
}

func TestMaxBodyBytes(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodyBytes(8))
	r.POST("/", func(c *gin.Context) {
		var in map[string]any
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, err.Error()))
			return
		}
		c.JSON(http.StatusOK, resp.OK(in))
	})

	out := do(t, r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, resp.CodeOK, out.Code)

	out = do(t, r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"too long"}`)))
	assert.Equal(t, resp.CodeTooLarge, out.Code)
}

func TestAccessLogMasksSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(RequestID(), AccessLog(zap.New(core)))
	r.GET("/items/:id", func(c *gin.Context) { c.JSON(http.StatusOK, resp.OK(nil)) })
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, ""))
	})

	do(t, r, httptest.NewRequest(http.MethodGet, "/items/7?token=abc&q=x", nil))
	do(t, r, httptest.NewRequest(http.MethodGet, "/fail", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "/items/:id", ctx["route"])
	assert.Equal(t, map[string][]string{"token": {"****"}, "q": {"x"}}, ctx["query"])
	assert.NotEmpty(t, ctx["rid"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}
