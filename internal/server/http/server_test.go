package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/remind-keeper/internal/auth"
	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/model"
	"github.com/and161185/remind-keeper/internal/service"
)

var (
	signKey = []byte("http-test-key")
	now     = time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
)

type fakeService struct {
	owners    map[int64]string
	list      []model.Reminder
	submitOut model.Submission
	submitErr error
	editErr   error
	deleteErr error

	gotOwner int64
	gotID    int64
	gotText  string
	gotAt    time.Time
}

var _ service.ReminderService = (*fakeService)(nil)

func (f *fakeService) RegisterOwner(_ context.Context, id int64, name string) {
	if f.owners == nil {
		f.owners = map[int64]string{}
	}
	f.owners[id] = name
}

func (f *fakeService) Submit(_ context.Context, owner int64, raw string) (model.Submission, error) {
	f.gotOwner, f.gotText = owner, raw
	return f.submitOut, f.submitErr
}

func (f *fakeService) ListForOwner(_ context.Context, owner int64) []model.Reminder {
	f.gotOwner = owner
	return f.list
}

func (f *fakeService) EditByPosition(context.Context, int64, int, string, time.Time) error { return nil }
func (f *fakeService) DeleteByPosition(context.Context, int64, int) error                { return nil }

func (f *fakeService) EditByID(_ context.Context, owner, id int64, text string, at time.Time) error {
	f.gotOwner, f.gotID, f.gotText, f.gotAt = owner, id, text, at
	return f.editErr
}

func (f *fakeService) DeleteByID(_ context.Context, owner, id int64) error {
	f.gotOwner, f.gotID = owner, id
	return f.deleteErr
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeTicker struct{ n int64 }

func (t fakeTicker) Tick(context.Context) int64 { return t.n }

func newServer(t *testing.T, svc *fakeService, ping error) http.Handler {
	t.Helper()
	clk := clock.NewFake()
	clk.Set(now)
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "rk_test_total", Help: "test"}))
	s := New(svc, fakePinger{ping}, fakeTicker{3}, signKey, zaptest.NewLogger(t),
		WithClock(clk), WithGatherer(reg))
	return s.Router()
}

func token(t *testing.T) string {
	t.Helper()
	tok, _, err := auth.Issue(signKey, "telegram-bot", time.Hour, now)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, h http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer "+token(t))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	t.Parallel()
	rr := do(t, newServer(t, &fakeService{}, nil), http.MethodGet, "/healthz", "", false)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = do(t, newServer(t, &fakeService{}, errors.New("db down")), http.MethodGet, "/healthz", "", false)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	rr := do(t, newServer(t, &fakeService{}, nil), http.MethodGet, "/metrics", "", false)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "rk_test_total")
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	h := newServer(t, &fakeService{}, nil)

	rr := do(t, h, http.MethodGet, "/v1/owners/1/reminders", "", false)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/owners/1/reminders", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	expired, _, err := auth.Issue(signKey, "x", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/v1/owners/1/reminders", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPutOwner(t *testing.T) {
	t.Parallel()
	svc := &fakeService{}
	rr := do(t, newServer(t, svc, nil), http.MethodPut, "/v1/owners/77", `{"display_name":" ann "}`, true)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, map[int64]string{77: "ann"}, svc.owners)
}

func TestListReminders(t *testing.T) {
	t.Parallel()
	at := now.Add(time.Hour)
	svc := &fakeService{list: []model.Reminder{{ID: 5, OwnerID: 1, Text: "a", FireAt: at}, {ID: 8, OwnerID: 1, Text: "b", FireAt: at}}}
	rr := do(t, newServer(t, svc, nil), http.MethodGet, "/v1/owners/1/reminders", "", true)
	require.Equal(t, http.StatusOK, rr.Code)

	var got []ReminderJSON
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	require.Len(t, got, 2)
	require.Equal(t, ReminderJSON{Position: 2, ID: 8, Text: "b", FireAt: at}, got[1])
}

func TestListReminders_EmptyIsArray(t *testing.T) {
	t.Parallel()
	rr := do(t, newServer(t, &fakeService{}, nil), http.MethodGet, "/v1/owners/1/reminders", "", true)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
}

func TestCreateReminder(t *testing.T) {
	t.Parallel()
	job := uuid.Must(uuid.NewV4())
	at := now.Add(2 * time.Hour)
	svc := &fakeService{submitOut: model.Submission{
		State:    model.StatePersisted,
		Reminder: model.Reminder{ID: 12, OwnerID: 3, Text: "buy milk", FireAt: at},
		JobID:    job,
	}}
	rr := do(t, newServer(t, svc, nil), http.MethodPost, "/v1/owners/3/reminders", `{"text":"buy milk in 2 hours"}`, true)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, int64(3), svc.gotOwner)
	require.Equal(t, "buy milk in 2 hours", svc.gotText)

	var got ReminderJSON
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	require.Equal(t, ReminderJSON{ID: 12, Text: "buy milk", FireAt: at, JobID: job.String(), State: "persisted"}, got)
}

func TestCreateReminder_Errors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		code int
	}{
		{errs.ErrExtraction, http.StatusUnprocessableEntity},
		{errs.ErrLeadTime, http.StatusUnprocessableEntity},
		{errs.ErrQueue, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := do(t, newServer(t, &fakeService{submitErr: tc.err}, nil), http.MethodPost, "/v1/owners/3/reminders", `{"text":"x"}`, true)
		require.Equal(t, tc.code, rr.Code, tc.err.Error())
	}
}

func TestCreateReminder_BadInput(t *testing.T) {
	t.Parallel()
	h := newServer(t, &fakeService{}, nil)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/owners/abc/reminders", `{"text":"x"}`, true).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/owners/0/reminders", `{"text":"x"}`, true).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/owners/1/reminders", `{"txt":"x"}`, true).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/owners/1/reminders", `not json`, true).Code)
}

func TestUpdateReminder(t *testing.T) {
	t.Parallel()
	svc := &fakeService{}
	h := newServer(t, svc, nil)
	rr := do(t, h, http.MethodPut, "/v1/owners/4/reminders/9", `{"text":"new","fire_at":"2030-05-02T08:00:00Z"}`, true)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, int64(4), svc.gotOwner)
	require.Equal(t, int64(9), svc.gotID)
	require.Equal(t, "new", svc.gotText)
	require.True(t, svc.gotAt.Equal(time.Date(2030, 5, 2, 8, 0, 0, 0, time.UTC)))

	svc.editErr = errs.ErrNotFound
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPut, "/v1/owners/4/reminders/9", `{"text":"new","fire_at":"2030-05-02T08:00:00Z"}`, true).Code)
	svc.editErr = errs.ErrLeadTime
	require.Equal(t, http.StatusUnprocessableEntity, do(t, h, http.MethodPut, "/v1/owners/4/reminders/9", `{"text":"new","fire_at":"2030-05-02T08:00:00Z"}`, true).Code)
}

func TestUpdateReminder_StoredWithoutDelivery(t *testing.T) {
	t.Parallel()
	svc := &fakeService{editErr: fmt.Errorf("reminder updated, delivery not rescheduled: %w", errs.ErrQueue)}
	h := newServer(t, svc, nil)

	rr := do(t, h, http.MethodPut, "/v1/owners/4/reminders/9", `{"text":"new","fire_at":"2030-05-02T08:00:00Z"}`, true)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp UpdateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "reminder updated, delivery not rescheduled", resp.Warning)
}

func TestDeleteReminder(t *testing.T) {
	t.Parallel()
	svc := &fakeService{}
	h := newServer(t, svc, nil)
	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/v1/owners/4/reminders/9", "", true).Code)
	require.Equal(t, int64(9), svc.gotID)

	svc.deleteErr = errs.ErrNotFound
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/v1/owners/4/reminders/9", "", true).Code)
}

func TestSweep(t *testing.T) {
	t.Parallel()
	rr := do(t, newServer(t, &fakeService{}, nil), http.MethodPost, "/v1/sweep", "", true)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"deleted":3}`, rr.Body.String())
}

func TestSubjectCtx(t *testing.T) {
	t.Parallel()
	_, ok := SubjectFromCtx(context.Background())
	require.False(t, ok)
	sub, ok := SubjectFromCtx(WithSubject(context.Background(), "ops"))
	require.True(t, ok)
	require.Equal(t, "ops", sub)
}
