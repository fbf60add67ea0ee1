package visualization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/nvandessel/conviction/internal/store"
)

// Server serves run reports and the recorded history of runs.
type Server struct {
	store      store.HistoryStore
	defaultRun string
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a report server. defaultRun is shown when a request
// does not name a run.
func NewServer(hs store.HistoryStore, defaultRun string) *Server {
	return &Server{store: hs, defaultRun: defaultRun}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/steps", s.handleSteps)
	mux.HandleFunc("/api/network", s.handleNetwork)
	return mux
}

// ListenAndServe starts the HTTP server on an OS-assigned port and blocks
// until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) runID(r *http.Request) string {
	if id := r.URL.Query().Get("run"); id != "" {
		return id
	}
	return s.defaultRun
}

// handleIndex serves the HTML report of a run.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	runID := s.runID(r)
	if runID == "" {
		http.Error(w, "missing 'run' query parameter", http.StatusBadRequest)
		return
	}

	steps, err := s.store.Steps(r.Context(), runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	net, step, err := s.store.LoadNetwork(r.Context(), runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	html, err := RenderHTML(runID, step, *net, steps)
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), 50)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := s.store.Steps(r.Context(), s.runID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, steps)
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	net, step, err := s.store.LoadNetwork(r.Context(), s.runID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	data := RenderJSON(*net, Options{})
	data["step"] = step
	writeJSON(w, data)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrRunNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// openCommands maps GOOS to the command that opens a URL.
var openCommands = map[string][]string{
	"linux":   {"xdg-open"},
	"darwin":  {"open"},
	"windows": {"cmd", "/c", "start"},
}

// OpenBrowser opens url in the user's default browser.
func OpenBrowser(url string) error {
	args, ok := openCommands[runtime.GOOS]
	if !ok {
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return exec.Command(args[0], append(args[1:], url)...).Start()
}
