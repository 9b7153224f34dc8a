package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/plantopt"
	"github.com/aretw0/plantopt/internal/adapters/memory"
	"github.com/aretw0/plantopt/internal/metrics"
	"github.com/aretw0/plantopt/internal/testutils"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/scenario"
)

const twoScenarioBody = `{
	"label": "api",
	"resources": {
		"inputs": [{"name": "crude", "unit_cost": 10}],
		"products": [{"name": "fuel", "price": 25}],
		"processes": [{"name": "distill", "capacity": 150}],
		"yields": [{"input": "crude", "process": "distill", "product": "fuel", "ratio": 1}]
	},
	"tree": {
		"nodes": [
			{"name": "root", "prob": 1},
			{"name": "low", "parent": "root", "prob": 0.5, "payload": {"demand.fuel": 80}},
			{"name": "high", "parent": "root", "prob": 0.5, "payload": {"demand.fuel": 120}}
		]
	},
	"baseline": true
}`

type fixture struct {
	handler http.Handler
	store   *memory.Store
	streams *StreamManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	require.NoError(t, err)

	streams := NewStreamManager(nil)
	store := memory.New()
	planner := plantopt.New(
		plantopt.WithStore(store),
		plantopt.WithHooks(rec.Hooks()),
		plantopt.WithHooks(streams.Hooks()),
	)
	return &fixture{
		handler: NewHandler(Config{
			Planner: planner,
			Store:   store,
			Streams: streams,
			Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}),
		store:   store,
		streams: streams,
	}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestGetHealth(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestGetInfo(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/info", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "plantopt-http", resp["app"])
	assert.Equal(t, plantopt.Version, resp["version"])
	assert.Equal(t, "1.0.0", resp["api_version"])
}

func TestOpenAPISpec(t *testing.T) {
	doc, err := GetSwagger()
	require.NoError(t, err)
	assert.Equal(t, "plantopt API", doc.Info.Title)
	for _, path := range []string{"/solve", "/compare", "/results", "/results/{id}", "/events"} {
		assert.NotNil(t, doc.Paths.Value(path), path)
	}

	f := newFixture(t)
	rr := f.do(http.MethodGet, "/openapi.yaml", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "openapi: 3.0.3")
}

func TestSolve_ContractValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "missing tree", body: `{"resources": {}}`, want: "tree"},
		{name: "negative truncation", body: strings.Replace(twoScenarioBody, `"baseline": true`, `"truncate": -1`, 1), want: "truncate"},
		{name: "unknown formulation", body: strings.Replace(twoScenarioBody, `"baseline": true`, `"model": {"formulation": "dual"}`, 1), want: "formulation"},
		{name: "wrong type", body: strings.Replace(twoScenarioBody, `"baseline": true`, `"baseline": "yes"`, 1), want: "baseline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodPost, "/solve", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Contains(t, rr.Body.String(), "Invalid request")
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}

	rr := f.do(http.MethodPost, "/compare", strings.Replace(twoScenarioBody, `"baseline": true`, `"truncate_at": -2`, 1))
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	ids, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodOptions, "/solve", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestSolve_ArchivesAndServesResults(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/solve", twoScenarioBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var rec domain.RunRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "api", rec.Label)
	assert.Equal(t, domain.StatusOptimal, rec.Result.Status)
	assert.InDelta(t, 1300, rec.Outcome.ExpectedObjective, 1e-6)
	require.NotNil(t, rec.Outcome.VSS)
	assert.InDelta(t, 50, *rec.Outcome.VSS, 1e-6)

	rr = f.do(http.MethodGet, "/results", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var ids []string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ids))
	assert.Equal(t, []string{rec.ID}, ids)

	rr = f.do(http.MethodGet, "/results/"+rec.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var loaded domain.RunRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &loaded))
	assert.InDelta(t, rec.Outcome.ExpectedObjective, loaded.Outcome.ExpectedObjective, 1e-9)

	rr = f.do(http.MethodDelete, "/results/"+rec.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(http.MethodGet, "/results/"+rec.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `plantopt_solves_total{backend="simplex",status="optimal"}`)
}

func TestSolve_Rejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "not json", body: "{", code: http.StatusBadRequest},
		{name: "unknown field", body: `{"resourcez": {}}`, code: http.StatusBadRequest},
		{name: "empty tree", body: `{"resources": {}, "tree": {}}`, code: http.StatusUnprocessableEntity},
		{
			name: "probabilities do not sum to one",
			body: strings.Replace(twoScenarioBody, `"prob": 0.5, "payload": {"demand.fuel": 80}`, `"prob": 0.4, "payload": {"demand.fuel": 80}`, 1),
			code: http.StatusUnprocessableEntity,
		},
		{
			name: "non-convex chance constraint",
			body: strings.Replace(twoScenarioBody, `"baseline": true`, `"chance": [{"family": "capacity", "alpha": 0.1, "risk": "var"}]`, 1),
			code: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodPost, "/solve", tt.body)
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
		})
	}

	ids, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCompare(t *testing.T) {
	f := newFixture(t)
	body := strings.Replace(twoScenarioBody, `"baseline": true`, `"truncate_at": 0`, 1)

	rr := f.do(http.MethodPost, "/compare", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Table struct {
			Reference string `json:"reference"`
			Lines     []struct {
				Label    string   `json:"label"`
				Expected *float64 `json:"expected"`
			} `json:"lines"`
		} `json:"table"`
		Runs []string `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "stochastic", resp.Table.Reference)
	require.Len(t, resp.Table.Lines, 4)
	assert.Len(t, resp.Runs, 4)
	require.NotNil(t, resp.Table.Lines[0].Expected)
	assert.InDelta(t, 1300, *resp.Table.Lines[0].Expected, 1e-6)
}

func TestResults_WithoutStore(t *testing.T) {
	handler := NewHandler(Config{Planner: plantopt.New()})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/results", nil))
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(domain.ErrResultNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(&domain.MalformedTreeError{Node: 2, Reason: "x"}))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(&domain.SolverFailureError{Backend: "glpk", Err: context.DeadlineExceeded}))
	assert.Equal(t, http.StatusBadGateway, StatusFor(&domain.SolverFailureError{Backend: "glpk"}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("disk full")))
}

func TestSubscribeEvents(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?type=solve_end", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	require.Eventually(t, func() bool { return f.streams.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	tree, err := scenario.Chain(domain.Payload{}, domain.Payload{"demand.fuel": 50})
	require.NoError(t, err)
	raw, err := json.Marshal(RunRequest{Resources: testutils.Refinery(), Tree: scenario.Describe(tree)})
	require.NoError(t, err)

	rr := f.do(http.MethodPost, "/solve", string(raw))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// read frames until the solve_end data arrives, then disconnect
	var events []string
	var data string
	timeout := time.After(5 * time.Second)
	for data == "" {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed early, events so far: %v", events)
			if ev, found := strings.CutPrefix(line, "event: "); found {
				events = append(events, ev)
			}
			if d, found := strings.CutPrefix(line, "data: "); found && len(events) > 0 && events[len(events)-1] == string(domain.EventSolveEnd) {
				data = d
			}
		case <-timeout:
			t.Fatalf("no solve_end frame, events so far: %v", events)
		}
	}
	cancel()

	assert.Equal(t, []string{"ping", string(domain.EventSolveEnd)}, events, "the type filter drops assemble and solve_start")
	var ev domain.SolveEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, domain.StatusOptimal, ev.Status)

	require.Eventually(t, func() bool { return f.streams.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSubscribeEvents_FlushesBufferedOnDisconnect(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.handler.ServeHTTP(w, req)
	}()
	require.Eventually(t, func() bool { return f.streams.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	// Broadcast only enqueues; the handler may not have written yet when the client goes away.
	f.streams.Broadcast(Message{Type: domain.EventSolveEnd, Data: []byte(`{"status":"optimal"}`)})
	cancel()
	<-done

	assert.Contains(t, w.Body.String(), "event: solve_end\ndata: {\"status\":\"optimal\"}")
	assert.Zero(t, f.streams.Subscribers())
}
