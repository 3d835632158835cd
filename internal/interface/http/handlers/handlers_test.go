package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("1.2.3")

	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "No health checks registered", status.Message)

	c.AddCheck("database", func(context.Context) error { return nil })
	status = c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "OK", status.Checks["database"].Message)
	assert.Equal(t, "1.2.3", status.Version)

	c.AddCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") })
	c.AddCheck("another", func(context.Context) error { return errors.New("down") })
	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: another, redis", status.Message)
	assert.Equal(t, "dial tcp: refused", status.Checks["redis"].Message)
}

func TestCompositeHealthChecker_Details(t *testing.T) {
	c := NewCompositeHealthChecker("")
	c.AddDetailedCheck("database", func(context.Context) (map[string]any, error) {
		return map[string]any{"total_conns": 4}, nil
	})
	c.AddDetailedCheck("pool", func(context.Context) (map[string]any, error) {
		return map[string]any{"idle_conns": 0}, errors.New("ping timeout")
	})

	status := c.Check(context.Background())
	assert.Equal(t, 4, status.Checks["database"].Details["total_conns"])
	assert.False(t, status.Checks["pool"].Healthy)
	assert.Equal(t, "ping timeout", status.Checks["pool"].Message)
	assert.Equal(t, 0, status.Checks["pool"].Details["idle_conns"])
	assert.Nil(t, status.Checks["database"].Details["missing"])
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	c := NewCompositeHealthChecker("")
	c.SetTimeout(20 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	assert.False(t, status.Checks["slow"].Healthy)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestNewPingCheck(t *testing.T) {
	assert.NoError(t, NewPingCheck(pinger{})(context.Background()))
	assert.Error(t, NewPingCheck(pinger{err: errors.New("x")})(context.Background()))
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("key-1"), bcrypt.MinCost)
	require.NoError(t, err)

	_, err = NewAPIKeyAuth("", nil)
	assert.ErrorIs(t, err, ErrNoAPIKeys)

	_, err = NewAPIKeyAuth("", []string{"not-a-hash"})
	assert.Error(t, err)

	auth, err := NewAPIKeyAuth("", []string{" ", string(hash)})
	require.NoError(t, err)

	assert.True(t, auth.IsValid("key-1"))
	assert.True(t, auth.IsValid("key-1"), "second lookup is served from the accepted set")
	assert.False(t, auth.IsValid("key-2"))
	assert.False(t, auth.IsValid(""))
}

func TestHashAPIKey(t *testing.T) {
	h, err := HashAPIKey("abc")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("abc")))
}

func TestRequestSizeLimitMiddleware(t *testing.T) {
	h := RequestSizeLimitMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := ChainHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("a"), mw("b"), SecurityHeadersMiddleware)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "handler"}, order)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
