package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

type stubEnqueuer struct {
	triggers []string
	err      error
}

func (s *stubEnqueuer) EnqueueFXSync(ctx context.Context, trigger string) (*asynq.TaskInfo, error) {
	s.triggers = append(s.triggers, trigger)
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestNewFXSyncTaskPayload(t *testing.T) {
	task, err := NewFXSyncTask(TriggerManual)
	require.NoError(t, err)
	require.Equal(t, TaskFXRatesSync, task.Type())

	payload, err := DecodeFXSyncPayload(task)
	require.NoError(t, err)
	require.Equal(t, TriggerManual, payload.Trigger)

	_, err = NewFXSyncTask("")
	require.Error(t, err)
}

func TestDecodeFXSyncPayloadSkipsRetryOnGarbage(t *testing.T) {
	_, err := DecodeFXSyncPayload(asynq.NewTask(TaskFXRatesSync, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	payload, err := DecodeFXSyncPayload(asynq.NewTask(TaskFXRatesSync, []byte("{}")))
	require.NoError(t, err)
	require.Equal(t, TriggerCron, payload.Trigger)
}

func TestHealthWithoutInspector(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(NewHandler(nil, nil, nil)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"failed":0}`, rr.Body.String())
}

func TestHealthReportsQueueInfo(t *testing.T) {
	inspector := stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2, Active: 1, Failed: 3}}
	rr := httptest.NewRecorder()
	newTestRouter(NewHandler(inspector, nil, nil)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":2,"active":1,"failed":3}`, rr.Body.String())
}

func TestHealthInspectorFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	h := NewHandler(stubInspector{err: errors.New("redis down")}, nil, nil)
	newTestRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestEnqueueSync(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	rr := httptest.NewRecorder()
	newTestRouter(NewHandler(nil, enqueuer, nil)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/fx-sync", nil))

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, []string{TriggerHTTP}, enqueuer.triggers)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "task-1", resp["task_id"])
}

func TestEnqueueSyncFailure(t *testing.T) {
	enqueuer := &stubEnqueuer{err: errors.New("redis down")}
	rr := httptest.NewRecorder()
	newTestRouter(NewHandler(nil, enqueuer, nil)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/fx-sync", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
