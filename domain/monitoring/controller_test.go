package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workdora/waitlist-api/config/router"
	"github.com/workdora/waitlist-api/internal/log"
)

type fakeDatabase struct {
	name string
	err  error
}

func (p fakeDatabase) PingDatabase(context.Context) error { return p.err }
func (p fakeDatabase) DatabaseName() string               { return p.name }

type fakeCache struct{ err error }

func (c fakeCache) Ping(context.Context) error { return c.err }

type healthEnvelope struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	Timestamp string       `json:"timestamp"`
	Data      HealthStatus `json:"data"`
}

func newHealthRouter(t *testing.T, database DatabaseHandle, cache Cache, globalLimit int) *router.RouterService {
	t.Helper()

	logger := log.NewLoggerWithJSONOutput()
	rs := router.CreateRouterService(logger, nil, &router.RouterConfig{
		RateLimitRequests: globalLimit,
		RateLimitWindow:   time.Minute,
		RequestTimeout:    5 * time.Second,
	})
	t.Cleanup(rs.Cleanup)
	rs.MountController(NewMonitoringController(database, logger, cache))
	return rs
}

func getHealth(t *testing.T, database DatabaseHandle, cache Cache) (int, healthEnvelope) {
	t.Helper()

	rs := newHealthRouter(t, database, cache, 100)
	w := httptest.NewRecorder()
	rs.GetEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var resp healthEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func TestHealthCheck_AllUp(t *testing.T) {
	code, resp := getHealth(t, fakeDatabase{name: "postgres"}, fakeCache{})

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Equal(t, "Workdora Waitlist API is running", resp.Message)
	assert.Equal(t, "connected", resp.Data.Database)
	assert.Equal(t, "postgres", resp.Data.Driver)
	assert.Equal(t, "connected", resp.Data.Cache)

	_, err := time.Parse(time.RFC3339Nano, resp.Timestamp)
	assert.NoError(t, err)
	assert.Equal(t, resp.Timestamp, resp.Data.Timestamp)
}

func TestHealthCheck_IsNeverRateLimited(t *testing.T) {
	rs := newHealthRouter(t, fakeDatabase{name: "postgres"}, nil, 1)

	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		rs.GetEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}
}

func TestHealthCheck_ReportsFailuresWithoutFailing(t *testing.T) {
	code, resp := getHealth(t, fakeDatabase{name: "mongo", err: errors.New("no reachable servers")}, fakeCache{err: errors.New("dial tcp")})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "disconnected", resp.Data.Database)
	assert.Equal(t, "mongo", resp.Data.Driver)
	assert.Equal(t, "disconnected", resp.Data.Cache)
}

func TestHealthCheck_NoCacheConfigured(t *testing.T) {
	_, resp := getHealth(t, fakeDatabase{name: "postgres"}, nil)

	assert.Equal(t, "not_configured", resp.Data.Cache)
}
