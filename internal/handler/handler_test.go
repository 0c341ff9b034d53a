package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"player-reid-go/internal/model"
	"player-reid-go/internal/reid"
	"player-reid-go/internal/repository"
	"player-reid-go/internal/service"
	"player-reid-go/internal/store"
	"player-reid-go/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type memoryRepository struct {
	mu   sync.Mutex
	runs map[string]model.Run
}

func (r *memoryRepository) Create(run *model.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

func (r *memoryRepository) GetByID(id string) (*model.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("run with id %s: %w", id, repository.ErrNotFound)
	}
	return &run, nil
}

func (r *memoryRepository) List(page, pageSize int) ([]*model.Run, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Run
	for id := range r.runs {
		run := r.runs[id]
		out = append(out, &run)
	}
	return out, int64(len(out)), nil
}

func (r *memoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[id]; !ok {
		return fmt.Errorf("run with id %s: %w", id, repository.ErrNotFound)
	}
	delete(r.runs, id)
	return nil
}

func (r *memoryRepository) Update(run *model.Run) error {
	return r.Create(run)
}

type stubPipeline struct {
	err error
}

func (p stubPipeline) RunAll(_ context.Context, in service.PipelineInput) (*service.PipelineResult, error) {
	if p.err != nil {
		return &service.PipelineResult{RunID: in.RunID}, p.err
	}
	path := filepath.Join(in.OutputDir, service.ResolvedFile)
	dets := []models.Detection{models.Detection{Frame: 2, BBox: models.BBox{0, 0, 10, 10}, Confidence: 0.8}.WithIdentity(3)}
	if err := store.Save(path, dets); err != nil {
		return nil, err
	}
	return &service.PipelineResult{
		RunID:           in.RunID,
		Matches:         []reid.Match{{BIdentity: 0, AIdentity: 3, Similarity: 0.9}},
		DistinctTargets: 1,
		ResolvedPath:    path,
	}, nil
}

type stubModelAPI struct {
	err error
}

func (s stubModelAPI) CheckHealth(context.Context) (*models.HealthResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.HealthResponse{Status: "healthy", ModelLoaded: true}, nil
}

type testServer struct {
	router *gin.Engine
	repo   *memoryRepository
}

func newTestServer(t *testing.T, pipeline service.Pipeline, modelAPI ModelHealthChecker, dbErr error) *testServer {
	t.Helper()
	logger := quietLogger()
	repo := &memoryRepository{runs: make(map[string]model.Run)}
	runService := service.NewRunService(repo, pipeline, logger, t.TempDir())
	resolver := service.NewPipelineService(service.PipelineOptions{}, nil, nil, nil, logger)

	router := gin.New()
	NewRunHandler(runService, modelAPI, func() error { return dbErr }, logger).RegisterRoutes(router)
	NewResolveHandler(resolver, logger).RegisterRoutes(router)
	return &testServer{router: router, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, stubPipeline{}, stubModelAPI{}, nil)

	w := srv.do(t, http.MethodPost, "/api/v1/runs", service.CreateRunRequest{
		Name:            "final",
		BroadcastFrames: "/frames/broadcast",
		TacticamFrames:  "/frames/tacticam",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created service.RunResponse
	decode(t, w, &created)
	assert.Equal(t, model.RunStatusCompleted, created.Status)
	assert.Equal(t, map[int]int{0: 3}, created.Mapping)

	w = srv.do(t, http.MethodGet, "/api/v1/runs/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodGet, "/api/v1/runs?page=1&size=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list service.ListRunsResponse
	decode(t, w, &list)
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, 5, list.Size)

	w = srv.do(t, http.MethodGet, "/api/v1/runs/"+created.ID+"/detections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dets service.RunDetectionsResponse
	decode(t, w, &dets)
	require.Equal(t, 1, dets.Total)
	assert.Equal(t, 3, *dets.Detections[0].Identity)

	w = srv.do(t, http.MethodDelete, "/api/v1/runs/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodGet, "/api/v1/runs/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRunErrorStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		code   int
		status string
	}{
		{"no signal", &reid.EmptyAggregateError{Stream: "broadcast"}, http.StatusUnprocessableEntity, model.RunStatusFailedNoSignal},
		{"malformed", service.ErrMalformedInput, http.StatusBadRequest, model.RunStatusFailedInput},
		{"internal", errors.New("boom"), http.StatusInternalServerError, model.RunStatusFailed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, stubPipeline{err: tt.err}, stubModelAPI{}, nil)
			w := srv.do(t, http.MethodPost, "/api/v1/runs", service.CreateRunRequest{
				BroadcastFrames: "a",
				TacticamFrames:  "b",
			})
			assert.Equal(t, tt.code, w.Code)

			var body struct {
				Status string               `json:"status"`
				Run    *service.RunResponse `json:"run"`
			}
			decode(t, w, &body)
			assert.Equal(t, tt.status, body.Status)
			require.NotNil(t, body.Run)
			assert.Equal(t, tt.status, body.Run.Status)

			w = srv.do(t, http.MethodGet, "/api/v1/runs/"+body.Run.ID+"/detections", nil)
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestCreateRunBadRequest(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, stubPipeline{}, stubModelAPI{}, nil)
	w := srv.do(t, http.MethodPost, "/api/v1/runs", map[string]string{"name": "missing dirs"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, srv.repo.runs)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, stubPipeline{}, stubModelAPI{}, nil)
	w := srv.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	srv = newTestServer(t, stubPipeline{}, stubModelAPI{err: errors.New("down")}, nil)
	w = srv.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	srv = newTestServer(t, stubPipeline{}, stubModelAPI{}, errors.New("db down"))
	w = srv.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "unavailable", body["database"])
}

func tagged(frame, id int, emb ...float64) models.Detection {
	return models.Detection{
		Frame:      frame,
		BBox:       models.BBox{0, 0, 20, 40},
		Confidence: 0.9,
		Embedding:  emb,
	}.WithIdentity(id)
}

func TestResolveEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, stubPipeline{}, stubModelAPI{}, nil)
	w := srv.do(t, http.MethodPost, "/api/v1/resolve", models.ResolveRequest{
		Broadcast: []models.Detection{tagged(0, 0, 1, 0), tagged(0, 1, 0, 1)},
		Tacticam:  []models.Detection{tagged(0, 0, 0.1, 0.9), tagged(1, 1, 0.9, 0.1), tagged(2, 0, 0, 1)},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.ResolveResponse
	decode(t, w, &resp)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, map[int]int{0: 1, 1: 0}, resp.Mapping)
	require.Len(t, resp.Tacticam, 3)
	assert.Equal(t, 1, *resp.Tacticam[0].Identity)
	assert.Equal(t, 0, *resp.Tacticam[1].Identity)
	assert.Equal(t, 1, *resp.Tacticam[2].Identity)
}

func TestResolveEndpointErrors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, stubPipeline{}, stubModelAPI{}, nil)

	w := srv.do(t, http.MethodPost, "/api/v1/resolve", models.ResolveRequest{
		Broadcast: []models.Detection{tagged(0, 0, 1, 0)},
		Tacticam:  []models.Detection{{Frame: 0, BBox: models.BBox{0, 0, 10, 10}, Confidence: 0.9}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = srv.do(t, http.MethodPost, "/api/v1/resolve", models.ResolveRequest{
		Broadcast: []models.Detection{tagged(0, 0, 1, 0)},
		Tacticam:  []models.Detection{tagged(0, 0, 1, 0, 0)},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bad := tagged(0, 0, 1, 0)
	bad.BBox = models.BBox{10, 10, 5, 5}
	w = srv.do(t, http.MethodPost, "/api/v1/resolve", models.ResolveRequest{
		Broadcast: []models.Detection{bad},
		Tacticam:  []models.Detection{tagged(0, 0, 1, 0)},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
