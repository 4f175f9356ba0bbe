package pipeline

import (
	"errors"
	"log"
	"net/http"
	"sync"
)

var errAlreadyRunning = errors.New("the pipeline is running already")

type Handler struct {
	generator *Generator

	mu      sync.Mutex
	running bool
}

func NewHandler(generator *Generator) *Handler {
	return &Handler{generator: generator}
}

// ServeHTTP handles requests to the /v0/generate endpoint.
// This endpoint runs the entire generation pipeline: namespaces are
// assembled and every namespace's views, datagroups, explores and
// dashboards are written to the configured output.
//
// The querystring parameters are:
// - namespace (optional): generate artifacts for this namespace only.
//
// This endpoint accepts only POST requests, and rejects concurrent runs.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.tryLock() {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(errAlreadyRunning.Error()))
		return
	}
	defer h.unlock()

	only := r.URL.Query().Get("namespace")
	if err := h.generator.Run(r.Context(), only); err != nil {
		log.Printf("Generation failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
		return
	}
	w.Write([]byte("ok"))
}

func (h *Handler) tryLock() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return false
	}
	h.running = true
	return true
}

func (h *Handler) unlock() {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
}
