package handler

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appJobs "github.com/lodehq/backend/internal/application/jobs"
	"github.com/lodehq/backend/internal/infrastructure/storage"
	"github.com/lodehq/backend/internal/infrastructure/websocket"
)

func setupJobsRouter(t *testing.T) (*gin.Engine, *appJobs.Service) {
	t.Helper()

	db := newTestArchiveDB(t)
	jobRepo := storage.NewJobRepository(db)

	hub := websocket.NewHub()
	hub.Start()

	svc := appJobs.NewService(jobRepo, nil, hub, nil)
	h := NewJobsHandler(svc, hub)

	router := gin.New()
	jobs := router.Group("/api/v1/jobs")
	{
		jobs.GET("", h.List)
		jobs.GET("/:id", h.Get)
		jobs.POST("/:id/cancel", h.Cancel)
	}
	return router, svc
}

func newTestArchiveDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	require.NoError(t, storage.InitArchiveDatabase(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestJobsHandler_Get_NotFound(t *testing.T) {
	router, _ := setupJobsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nope", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobsHandler_Cancel_NotFound(t *testing.T) {
	router, _ := setupJobsRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/nope/cancel", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobsHandler_List_Empty(t *testing.T) {
	router, _ := setupJobsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data struct {
			Jobs []json.RawMessage `json:"jobs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Empty(t, response.Data.Jobs)
}
