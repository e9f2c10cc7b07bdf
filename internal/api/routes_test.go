package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/api/handlers/asset"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/api/middleware"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/blobstore"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/ratelimit"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/services"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	blobs := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, blobs.EnsureLocation(context.Background()))
	svc := services.NewAssetService(services.Options{
		Repo:  storage.NewMemoryStorage(),
		Blobs: blobs,
	})

	r := gin.New()
	RegisterRoutes(r,
		asset.NewHandler(svc, nil, 0),
		middleware.RequireAuth(middleware.NewHeaderAuthenticator("X-User-ID")),
		middleware.RateLimit(ratelimit.NewMemoryStore(), 2, time.Hour, nil),
	)
	return r
}

func serve(r *gin.Engine, method, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutes_HealthIsPublic(t *testing.T) {
	w := serve(newRouter(t), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoutes_Preflight(t *testing.T) {
	w := serve(newRouter(t), http.MethodOptions, "/api/assets", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestRoutes_AssetsRequireAuth(t *testing.T) {
	r := newRouter(t)
	for _, path := range []string{"/api/assets", "/api/assets/stats", "/api/assets/x.pdf", "/api/assets/x.pdf/download"} {
		assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, path, "").Code, path)
	}
}

func TestRoutes_StatsAndRateLimit(t *testing.T) {
	r := newRouter(t)

	w := serve(r, http.MethodGet, "/api/assets/stats", "U1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"asset_count":0`)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/assets/stats", "U1").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/api/assets/stats", "U1").Code)
}
