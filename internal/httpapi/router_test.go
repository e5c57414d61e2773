package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-owls/infrastructure/auth"
	"github.com/ahrav/go-owls/infrastructure/storage/memstore"
	"github.com/ahrav/go-owls/internal/application"
	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
	"github.com/ahrav/go-owls/internal/testutils"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

type apiHarness struct {
	router *gin.Engine
	lookup *testutils.FakeNormLookup
	store  *memstore.Store
	token  string
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	store := memstore.New()
	lookup := testutils.NewExampleNormLookup()
	svc, err := application.NewService(store, lookup,
		application.WithClock(testutils.FixedClock(time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC), time.Minute)),
		application.WithIDGenerator(testutils.SequentialIDs("id")),
	)
	require.NoError(t, err)

	authn, err := auth.NewJWTAuthenticator(testSecret, "owls")
	require.NoError(t, err)
	token, err := authn.IssueToken("dr.rivera", time.Hour)
	require.NoError(t, err)

	router, err := NewRouter(Options{
		Service:        svc,
		Authenticator:  authn,
		MetricsPath:    "/metrics",
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
	})
	require.NoError(t, err)

	return &apiHarness{router: router, lookup: lookup, store: store, token: token}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (h *apiHarness) create(t *testing.T) string {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/evaluation", map[string]any{"studentInfo": testutils.ExampleStudent()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[createEvaluationResponse](t, rec).EvaluationID
}

func (h *apiHarness) detail(t *testing.T, id string) application.EvaluationDetail {
	t.Helper()
	rec := h.do(t, http.MethodGet, "/evaluation/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[application.EvaluationDetail](t, rec)
}

// answer marks the first correct tasks "+" and the next incorrect tasks "-".
func (h *apiHarness) answer(t *testing.T, id string, tasks []domain.Task, correct, incorrect int) {
	t.Helper()
	for i := 0; i < correct+incorrect; i++ {
		mark := "+"
		if i >= correct {
			mark = "-"
		}
		rec := h.do(t, http.MethodPost, "/evaluation/"+id+"/response",
			recordResponseRequest{TaskID: tasks[i].ID, Response: mark})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestNewRouter_RequiresCollaborators(t *testing.T) {
	_, err := NewRouter(Options{})
	assert.Error(t, err)

	svc, err := application.NewService(memstore.New(), testutils.NewExampleNormLookup())
	require.NoError(t, err)
	_, err = NewRouter(Options{Service: svc})
	assert.Error(t, err)
}

func TestAPI_WorkedExample(t *testing.T) {
	h := newAPIHarness(t)
	id := h.create(t)

	detail := h.detail(t, id)
	assert.Equal(t, domain.StatusInProgress, detail.Evaluation.Status)
	assert.Equal(t, "dr.rivera", detail.Evaluation.CreatedBy)
	require.NotEmpty(t, detail.ListeningTasks)
	require.NotEmpty(t, detail.OralTasks)

	h.answer(t, id, detail.ListeningTasks, 20, 5)
	h.answer(t, id, detail.OralTasks, 18, 7)

	rec := h.do(t, http.MethodGet, "/evaluation/"+id+"/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decode[progressResponse](t, rec)
	assert.Equal(t, 20, progress.Subtests[domain.ListeningComprehension].Raw)
	assert.Equal(t, 25, progress.Subtests[domain.OralExpression].Answered)

	rec = h.do(t, http.MethodGet, "/evaluation/"+id+"/score", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/evaluation/"+id+"/calculate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[domain.ScoreResult](t, rec)
	assert.Equal(t, 105, result.PerSubtest[domain.ListeningComprehension].StandardScore)
	assert.Equal(t, "45th", result.PerSubtest[domain.OralExpression].PercentileRank)
	assert.Equal(t, 203, result.Composite.SumStandardScores)
	assert.Equal(t, 101, result.Composite.StandardScore)
	assert.Equal(t, "53rd", result.Composite.PercentileRank)

	// Calculate is idempotent and the stored result matches.
	rec = h.do(t, http.MethodPost, "/evaluation/"+id+"/calculate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[domain.ScoreResult](t, rec)
	assert.True(t, result.ComputedAt.Equal(again.ComputedAt))

	rec = h.do(t, http.MethodGet, "/evaluation/"+id+"/score", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 101, decode[domain.ScoreResult](t, rec).Composite.StandardScore)

	// A completed evaluation rejects further writes.
	rec = h.do(t, http.MethodPost, "/evaluation/"+id+"/response",
		recordResponseRequest{TaskID: detail.ListeningTasks[0].ID, Response: "incorrect"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codePrecondition, decode[errorBody](t, rec).Error)

	rec = h.do(t, http.MethodPost, "/evaluation/"+id+"/undo", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_Undo(t *testing.T) {
	h := newAPIHarness(t)
	id := h.create(t)
	tasks := h.detail(t, id).ListeningTasks

	rec := h.do(t, http.MethodPost, "/evaluation/"+id+"/undo", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNothingUndo, decode[errorBody](t, rec).Error)

	h.answer(t, id, tasks, 1, 0)
	rec = h.do(t, http.MethodPost, "/evaluation/"+id+"/response",
		recordResponseRequest{TaskID: tasks[0].ID, Response: "incorrect"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/evaluation/"+id+"/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	undone := decode[undoResponse](t, rec)
	assert.Equal(t, tasks[0].ID, undone.TaskID)
	assert.Equal(t, domain.ResponseCorrect, undone.RestoredResponse)

	rec = h.do(t, http.MethodPost, "/evaluation/"+id+"/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ResponseUnanswered, decode[undoResponse](t, rec).RestoredResponse)

	assert.Equal(t, domain.ResponseUnanswered, h.detail(t, id).ListeningTasks[0].Response)
}

func TestAPI_RequestErrors(t *testing.T) {
	h := newAPIHarness(t)
	id := h.create(t)
	taskID := h.detail(t, id).ListeningTasks[0].ID

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"missing student", http.MethodPost, "/evaluation", map[string]any{}, http.StatusBadRequest, codeValidation},
		{"invalid student", http.MethodPost, "/evaluation",
			map[string]any{"studentInfo": domain.Student{FirstName: "a", LastName: "b", School: "c", AgeYears: 6, AgeMonths: 12}},
			http.StatusBadRequest, codeValidation},
		{"student name too long", http.MethodPost, "/evaluation",
			map[string]any{"studentInfo": domain.Student{FirstName: strings.Repeat("a", 5000), LastName: "b", School: "c", AgeYears: 6}},
			http.StatusBadRequest, codeValidation},
		{"unknown evaluation", http.MethodGet, "/evaluation/missing", nil, http.StatusNotFound, codeNotFound},
		{"unknown task", http.MethodPost, "/evaluation/" + id + "/response",
			recordResponseRequest{TaskID: "missing", Response: "correct"}, http.StatusNotFound, codeNotFound},
		{"bad response value", http.MethodPost, "/evaluation/" + id + "/response",
			recordResponseRequest{TaskID: taskID, Response: "maybe"}, http.StatusBadRequest, codeValidation},
		{"missing task id", http.MethodPost, "/evaluation/" + id + "/response",
			map[string]string{"response": "correct"}, http.StatusBadRequest, codeValidation},
		{"calculate without responses", http.MethodPost, "/evaluation/" + id + "/calculate", nil,
			http.StatusConflict, codePrecondition},
		{"progress of unknown evaluation", http.MethodGet, "/evaluation/missing/progress", nil,
			http.StatusNotFound, codeNotFound},
		{"bad status filter", http.MethodGet, "/evaluations?status=archived", nil, http.StatusBadRequest, codeValidation},
		{"bad limit", http.MethodGet, "/evaluations?limit=-1", nil, http.StatusBadRequest, codeValidation},
		{"unknown route", http.MethodGet, "/nowhere", nil, http.StatusNotFound, codeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decode[errorBody](t, rec).Error)
		})
	}
}

func TestAPI_CalculateOutOfRange(t *testing.T) {
	h := newAPIHarness(t)
	id := h.create(t)
	detail := h.detail(t, id)

	// 21 correct has no entry in the example table.
	h.answer(t, id, detail.ListeningTasks, 21, 0)
	h.answer(t, id, detail.OralTasks, 18, 0)

	rec := h.do(t, http.MethodPost, "/evaluation/"+id+"/calculate", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	body := decode[errorBody](t, rec)
	assert.Equal(t, codeOutOfRange, body.Error)
	require.NotNil(t, body.Details)
	assert.Equal(t, domain.NormTableSubtest, body.Details.Table)
	assert.Equal(t, 21, body.Details.RawScore)
	assert.Equal(t, testutils.ExampleAgeInMonths, body.Details.AgeInMonths)

	// The evaluation stays editable.
	assert.Equal(t, domain.StatusInProgress, h.detail(t, id).Evaluation.Status)
}

func TestAPI_CalculateUnavailable(t *testing.T) {
	h := newAPIHarness(t)
	id := h.create(t)
	detail := h.detail(t, id)
	h.answer(t, id, detail.ListeningTasks, 20, 0)
	h.answer(t, id, detail.OralTasks, 18, 0)

	retry := 7 * time.Second
	h.lookup.Error = &ports.LookupError{Source: "http", Operation: "SubtestScore", Err: ports.ErrRateLimited, RetryAfter: &retry}

	rec := h.do(t, http.MethodPost, "/evaluation/"+id+"/calculate", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Equal(t, "7", rec.Header().Get("Retry-After"))
	assert.Equal(t, codeUnavailable, decode[errorBody](t, rec).Error)
}

func TestAPI_ListEvaluations(t *testing.T) {
	h := newAPIHarness(t)
	first := h.create(t)
	second := h.create(t)

	rec := h.do(t, http.MethodGet, "/evaluations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]application.EvaluationSummary](t, rec)
	require.Len(t, rows, 2)
	assert.Equal(t, second, rows[0].ID)
	assert.Equal(t, first, rows[1].ID)
	assert.Equal(t, "Jamie Rivera", rows[0].StudentName)
	assert.Equal(t, "2026-03-09", rows[0].Date)

	rec = h.do(t, http.MethodGet, "/evaluations?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]application.EvaluationSummary](t, rec))

	rec = h.do(t, http.MethodGet, "/evaluations?limit=1&mine=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]application.EvaluationSummary](t, rec), 1)

	rec = h.do(t, http.MethodGet, "/evaluations?student=JAMIE", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]application.EvaluationSummary](t, rec), 2)

	rec = h.do(t, http.MethodGet, "/evaluations?student=nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]application.EvaluationSummary](t, rec))
}

func TestAPI_Authentication(t *testing.T) {
	h := newAPIHarness(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"bad token", "Bearer not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/evaluations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			assert.Equal(t, codeUnauthorized, decode[errorBody](t, rec).Error)
		})
	}

	// Health and metrics stay open.
	h.token = ""
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health", nil).Code)
	rec := h.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestAPI_NopAuthenticator(t *testing.T) {
	svc, err := application.NewService(memstore.New(), testutils.NewExampleNormLookup())
	require.NoError(t, err)
	router, err := NewRouter(Options{Service: svc, Authenticator: auth.NopAuthenticator{Subject: "local"}})
	require.NoError(t, err)

	h := &apiHarness{router: router}
	id := h.create(t)
	assert.Equal(t, "local", h.detail(t, id).Evaluation.CreatedBy)
}

func TestAPI_MutationSurvivesClientCancel(t *testing.T) {
	h := newAPIHarness(t)
	id := h.create(t)
	taskID := h.detail(t, id).ListeningTasks[0].ID

	body, err := json.Marshal(recordResponseRequest{TaskID: taskID, Response: "correct"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/evaluation/"+id+"/response", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+h.token)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.ResponseCorrect, h.detail(t, id).ListeningTasks[0].Response)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", domain.ErrNothingToUndo), http.StatusNotFound},
		{domain.ErrPreconditionFailed, http.StatusConflict},
		{ports.ErrConflict, http.StatusConflict},
		{domain.NewCompositeRangeError(300), http.StatusUnprocessableEntity},
		{ports.NewStoreError("badger", "GetTask", "t1", ports.ErrServiceUnavailable), http.StatusServiceUnavailable},
		{ports.ErrTimeout, http.StatusServiceUnavailable},
		{ports.ErrUnauthenticated, http.StatusUnauthorized},
		{domain.ErrInvalidSubtest, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got, _ := classify(tt.err)
			assert.Equal(t, tt.wantCode, got)
		})
	}
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	h := newAPIHarness(t)
	failing := &failingStore{Store: h.store, err: errors.New("disk on fire")}
	svc, err := application.NewService(failing, h.lookup)
	require.NoError(t, err)
	router, err := NewRouter(Options{Service: svc, Authenticator: auth.NopAuthenticator{}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, codeInternal, body.Error)
	assert.NotContains(t, body.Message, "disk on fire")
}

type failingStore struct {
	*memstore.Store
	err error
}

func (f *failingStore) Ping(context.Context) error { return f.err }
