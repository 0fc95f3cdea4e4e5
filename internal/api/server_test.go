package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxo-smsgw/smsgw/internal/model"
	"github.com/maxo-smsgw/smsgw/internal/outbound"
	"github.com/maxo-smsgw/smsgw/internal/reconcile"
	"github.com/maxo-smsgw/smsgw/internal/store"
)

const phone = "0412345678@sms.voipportal.com.au"

func newTestServer(t *testing.T, opts Options) http.Handler {
	s := NewServer(opts)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestNormalize(t *testing.T) {
	h := newTestServer(t, Options{})

	tests := []struct {
		name   string
		body   string
		status int
		text   string
		shape  string
	}{
		{"relayed sms", `{"body":"0412345678 wrote: Running late Reply directly to this email"}`, http.StatusOK, "Running late", "inbound"},
		{"echo", `{"body":"Email2SMS Reply From Support: See you at 5#!"}`, http.StatusOK, "See you at 5", "confirmation"},
		{"empty", `{"body":""}`, http.StatusOK, "", "plain"},
		{"malformed", `{"body":`, http.StatusBadRequest, "", ""},
		{"unknown field", `{"text":"hi"}`, http.StatusBadRequest, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/normalize", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			var got normalizeResponse
			decode(t, rec, &got)
			assert.Equal(t, tt.text, got.Text)
			assert.Equal(t, tt.shape, got.Shape)
		})
	}
}

func TestSubject(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := do(t, h, http.MethodPost, "/api/subject", `{"subject":"[#123] Re: Pickup"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"subject":"Re: Pickup"}`, rec.Body.String())
}

func rawMessage(to string) string {
	raw := `From: Acme Support <support@acme.test>
To: ` + to + `
Subject: [#123] Re: Pickup
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="alt"

--alt
Content-Type: text/plain; charset=utf-8

See you at 5
--alt
Content-Type: text/html; charset=utf-8

<p>See you at 5</p><div class="signature">Acme Support</div>
--alt--
`
	return strings.ReplaceAll(raw, "\n", "\r\n")
}

func TestIntercept(t *testing.T) {
	c := outbound.NewComposer()
	c.UseGateway(outbound.GatewayStages{})
	h := newTestServer(t, Options{Composer: c})

	rec := do(t, h, http.MethodPost, "/api/intercept", rawMessage(phone))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "message/rfc822", rec.Header().Get("Content-Type"))
	assert.Equal(t, "true", rec.Header().Get("X-Smsgw-Rewritten"))

	m, err := outbound.ParseMIME(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	body, typ := m.Body()
	assert.Equal(t, "See you at 5", body)
	assert.Equal(t, outbound.TypePlain, typ)
	assert.Empty(t, m.Parts())
	assert.Equal(t, "Re: Pickup", m.Subject())

	rec = do(t, h, http.MethodPost, "/api/intercept", rawMessage("jane@example.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "false", rec.Header().Get("X-Smsgw-Rewritten"))
	m, err = outbound.ParseMIME(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Len(t, m.Parts(), 1)
	assert.Equal(t, "[#123] Re: Pickup", m.Subject())
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, Options{RateLimit: 2, RateWindow: time.Minute})

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/api/subject", `{"subject":"x"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/api/subject", `{"subject":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// health checks are not rate limited
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
}

func TestRateLimiterKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func seededStore(t *testing.T) *store.Store {
	ctx := context.Background()
	s, err := store.Open(ctx, store.Options{Driver: store.DriverSQLite, DSN: ":memory:", Migrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	base := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	convs := []model.Conversation{
		{CustomerEmail: phone, CreatedAt: base},
		{CustomerEmail: phone, CreatedAt: base.Add(time.Hour)},
	}
	for i := range convs {
		require.NoError(t, s.CreateConversation(ctx, &convs[i]))
	}
	threads := []model.Thread{
		{ConversationID: convs[0].ID, Type: model.ThreadCustomer, Body: "Hi", CreatedAt: base},
		{ConversationID: convs[1].ID, Type: model.ThreadCustomer, Body: "Hi", CreatedAt: base.Add(time.Hour)},
	}
	for i := range threads {
		require.NoError(t, s.CreateThread(ctx, &threads[i]))
	}
	return s
}

func storeRuns(s *store.Store) RunFunc {
	return func(ctx context.Context, kind model.RunKind, dryRun bool) (*model.Run, error) {
		return reconcile.NewRunner(s, reconcile.Config{DryRun: dryRun, Recorder: s}).Execute(ctx, kind)
	}
}

func waitForJob(t *testing.T, h http.Handler, id string) JobView {
	var view JobView
	require.Eventually(t, func() bool {
		rec := do(t, h, http.MethodGet, "/api/job/"+id, "")
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
			return false
		}
		return view.Status != JobStatusRunning
	}, 5*time.Second, 10*time.Millisecond)
	return view
}

func TestMaintenanceJob(t *testing.T) {
	s := seededStore(t)
	h := newTestServer(t, Options{Runs: storeRuns(s), History: s})

	rec := do(t, h, http.MethodPost, "/api/runs", `{"kind":"run"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var started JobView
	decode(t, rec, &started)
	assert.Equal(t, model.RunFull, started.Kind)

	done := waitForJob(t, h, started.ID)
	assert.Equal(t, JobStatusCompleted, done.Status)
	require.NotNil(t, done.Counts)
	assert.Equal(t, 1, done.Counts.ConversationsMerged)
	assert.Equal(t, 1, done.Counts.DuplicatesDeleted)
	assert.NotEmpty(t, done.RunID)

	rec = do(t, h, http.MethodGet, "/api/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Runs []model.Run `json:"runs"`
	}
	decode(t, rec, &history)
	require.Len(t, history.Runs, 1)
	assert.Equal(t, done.RunID, history.Runs[0].ID)
	assert.Equal(t, 1, history.Runs[0].ConversationsMerged)

	rec = do(t, h, http.MethodGet, "/api/job/active", "")
	assert.JSONEq(t, `{"job":null}`, rec.Body.String())
}

func TestConversation(t *testing.T) {
	s := seededStore(t)
	h := newTestServer(t, Options{Conversations: s})

	convs, err := s.LiveConversations(context.Background(), "")
	require.NoError(t, err)
	require.NotEmpty(t, convs)

	rec := do(t, h, http.MethodGet, "/api/conversations/"+strconv.FormatInt(convs[0].ID, 10), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got struct {
		ID            int64  `json:"id"`
		CustomerEmail string `json:"customer_email"`
		Threads       []struct {
			Type string `json:"type"`
			Body string `json:"body"`
		} `json:"threads"`
	}
	decode(t, rec, &got)
	assert.Equal(t, convs[0].ID, got.ID)
	assert.Equal(t, phone, got.CustomerEmail)
	require.Len(t, got.Threads, 1)
	assert.Equal(t, "customer", got.Threads[0].Type)
	assert.Equal(t, "Hi", got.Threads[0].Body)

	tests := []struct {
		name   string
		opts   Options
		path   string
		status int
	}{
		{"missing", Options{Conversations: s}, "/api/conversations/9999", http.StatusNotFound},
		{"bad id", Options{Conversations: s}, "/api/conversations/abc", http.StatusBadRequest},
		{"no store", Options{}, "/api/conversations/1", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(t, tt.opts), http.MethodGet, tt.path, "")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestMaintenanceJobConflictAndCancel(t *testing.T) {
	release := make(chan struct{})
	runs := func(ctx context.Context, kind model.RunKind, dryRun bool) (*model.Run, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &model.Run{ID: "r1", Kind: kind, DryRun: dryRun}, ctx.Err()
	}
	h := newTestServer(t, Options{Runs: runs})
	defer close(release)

	rec := do(t, h, http.MethodPost, "/api/runs", `{"kind":"dedup","dry_run":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job JobView
	decode(t, rec, &job)
	assert.True(t, job.DryRun)

	rec = do(t, h, http.MethodPost, "/api/runs", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/job/active", "")
	assert.Contains(t, rec.Body.String(), job.ID)

	rec = do(t, h, http.MethodPost, "/api/job/"+job.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)

	done := waitForJob(t, h, job.ID)
	assert.Equal(t, JobStatusCancelled, done.Status)
}

func TestMaintenanceEndpointErrors(t *testing.T) {
	h := newTestServer(t, Options{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/api/runs", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/runs", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/job/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/job/nope/cancel", "").Code)

	s := seededStore(t)
	h = newTestServer(t, Options{Runs: storeRuns(s), History: s})
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/runs", `{"kind":"vacuum"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/runs?limit=0", "").Code)
}

func TestJobFailureIsReported(t *testing.T) {
	runs := func(context.Context, model.RunKind, bool) (*model.Run, error) {
		return nil, assert.AnError
	}
	h := newTestServer(t, Options{Runs: runs})

	rec := do(t, h, http.MethodPost, "/api/runs", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job JobView
	decode(t, rec, &job)

	done := waitForJob(t, h, job.ID)
	assert.Equal(t, JobStatusFailed, done.Status)
	assert.Equal(t, assert.AnError.Error(), done.Error)
	assert.Nil(t, done.Counts)
}

func TestJobManagerCleanup(t *testing.T) {
	jm := NewJobManager()
	job := jm.Create(model.RunFull, false)
	require.NotNil(t, job)
	assert.Nil(t, jm.Create(model.RunDedup, false))

	job.Finish(&model.Run{ID: "r"}, nil)
	assert.Nil(t, jm.GetActive())
	jm.Cleanup(time.Hour)
	assert.NotNil(t, jm.Get(job.ID))
	jm.Cleanup(-time.Second)
	assert.Nil(t, jm.Get(job.ID))
}
