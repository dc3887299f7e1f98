package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/params"
	"github.com/ethereum-optimism/infra/op-harness/reporting"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// APIServer exposes the runner state over HTTP and streams its events over a
// websocket.
type APIServer struct {
	log    log.Logger
	runner *runner.Runner
	hub    *EventHub
	json   *reporting.TreeJSONFormatter

	ctx    context.Context
	server *http.Server
}

// NewAPIServer creates the API for r and subscribes its event hub.
func NewAPIServer(r *runner.Runner, lg log.Logger) *APIServer {
	if lg == nil {
		lg = log.New()
		lg.Error("No logger provided, using default")
	}
	hub := NewEventHub(lg)
	r.AddObserver(hub)
	return &APIServer{
		log:    lg,
		runner: r,
		hub:    hub,
		json:   reporting.NewTreeJSONFormatter(false),
		ctx:    context.Background(),
	}
}

// Hub returns the event hub.
func (a *APIServer) Hub() *EventHub {
	return a.hub
}

// Handler returns the routes, wrapped in CORS.
func (a *APIServer) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/suites", a.handleSuites).Methods(http.MethodGet)
	api.HandleFunc("/tests", a.handleTests).Methods(http.MethodGet)
	api.HandleFunc("/tests/{id}", a.handleTest).Methods(http.MethodGet)
	api.HandleFunc("/tags", a.handleTags).Methods(http.MethodGet)
	api.HandleFunc("/summary", a.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/filter", a.handleGetFilter).Methods(http.MethodGet)
	api.HandleFunc("/filter", a.handleSetFilter).Methods(http.MethodPut)
	api.HandleFunc("/run", a.handleRun).Methods(http.MethodPost)
	api.HandleFunc("/stop", a.handleStop).Methods(http.MethodPost)
	api.Handle("/events", a.hub)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost},
	})
	return c.Handler(r)
}

func (a *APIServer) Start(ctx context.Context, addr string) error {
	a.ctx = ctx
	a.server = &http.Server{
		Handler: a.Handler(),
		Addr:    addr,
	}
	return a.server.ListenAndServe()
}

func (a *APIServer) Shutdown() error {
	a.hub.Close()
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(context.WithoutCancel(a.ctx))
}

type apiError struct {
	Error string `json:"error"`
}

func (a *APIServer) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		a.log.Error("Failed to marshal response", "err", err)
		status = http.StatusInternalServerError
		data = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		a.log.Debug("Failed to write response", "err", err)
	}
}

func (a *APIServer) writeError(w http.ResponseWriter, status int, err error) {
	metrics.RecordErrorDetails("api", err)
	a.writeJSON(w, status, apiError{Error: err.Error()})
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Status    runner.Status `json:"status"`
	RunID     string        `json:"runId,omitempty"`
	Debug     bool          `json:"debug"`
	HasFilter bool          `json:"hasFilter"`
	Current   *JobJSON      `json:"current,omitempty"`
}

func (a *APIServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status:    a.runner.Status(),
		RunID:     a.runner.RunID(),
		Debug:     a.runner.IsDebug(),
		HasFilter: a.runner.HasFilter(),
	}
	if t := a.runner.Current(); t != nil {
		j := testJSON(t)
		resp.Current = &j
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *APIServer) handleSuites(w http.ResponseWriter, _ *http.Request) {
	suites := a.runner.Suites()
	out := make([]JobJSON, 0, len(suites))
	for _, s := range suites {
		out = append(out, suiteJSON(s))
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *APIServer) handleTests(w http.ResponseWriter, _ *http.Request) {
	tests := a.runner.Tests()
	out := make([]JobJSON, 0, len(tests))
	for _, t := range tests {
		out = append(out, testJSON(t))
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *APIServer) handleTest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, t := range a.runner.Tests() {
		if t.ID == id {
			a.writeJSON(w, http.StatusOK, testJSON(t))
			return
		}
	}
	a.writeError(w, http.StatusNotFound, fmt.Errorf("test %s not found", id))
}

// TagJSON describes an interned tag.
type TagJSON struct {
	Name    string `json:"name"`
	Special bool   `json:"special,omitempty"`
	Config  string `json:"config,omitempty"`
	Color   string `json:"color"`
}

func (a *APIServer) handleTags(w http.ResponseWriter, _ *http.Request) {
	tags := a.runner.Tags()
	out := make([]TagJSON, 0, len(tags))
	for _, tag := range tags {
		j := TagJSON{Name: tag.Name, Special: tag.Special, Color: types.Palette[tag.Color]}
		if tag.Config != nil {
			j.Config = tag.Config.Key
		}
		out = append(out, j)
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *APIServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	tree := a.runner.Summary()
	if r.URL.Query().Has("failed") {
		tree.ShowOnlyFailed()
		prune(tree.Root)
	}
	a.writeJSON(w, http.StatusOK, a.json.Response(tree))
}

// prune drops hidden nodes so the JSON view matches the visible tree.
func prune(n *types.TestTreeNode) {
	kept := n.Children[:0]
	for _, child := range n.Children {
		if child.IsVisible {
			prune(child)
			kept = append(kept, child)
		}
	}
	n.Children = kept
}

func (a *APIServer) handleGetFilter(w http.ResponseWriter, _ *http.Request) {
	f := a.runner.Filter()
	s := &params.Snapshot{Suites: f.Suites, Tests: f.Tests, Tags: f.Tags, Text: f.Text}
	a.writeJSON(w, http.StatusOK, map[string]any{"query": s.Encode(), "filter": s})
}

// readSnapshot reads run params from the request query, or from a query
// string body.
func readSnapshot(r *http.Request) (*params.Snapshot, error) {
	query := r.URL.RawQuery
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil {
			return nil, err
		}
		if b := strings.TrimSpace(string(body)); b != "" {
			query = b
		}
	}
	return params.Parse(query)
}

func (a *APIServer) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	s, err := readSnapshot(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.runner.SetFilter(s.Filter()); err != nil {
		a.writeError(w, http.StatusConflict, err)
		return
	}
	a.handleGetFilter(w, r)
}

// handleRun starts a run in the background. A query replaces the filter
// first; the run switches stay as configured.
func (a *APIServer) handleRun(w http.ResponseWriter, r *http.Request) {
	if a.runner.Status() == runner.StatusRunning {
		a.writeError(w, http.StatusConflict, runner.ErrRunning)
		return
	}
	s, err := readSnapshot(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if f := s.Filter(); f.HasFilter() {
		if err := a.runner.SetFilter(f); err != nil {
			a.writeError(w, http.StatusConflict, err)
			return
		}
	}

	go func() {
		if err := a.runner.Start(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("Run failed", "err", err)
		}
	}()
	a.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (a *APIServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := a.runner.Stop(r.Context()); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": string(a.runner.Status())})
}
