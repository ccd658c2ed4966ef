package server

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"

	"github.com/conneroisu/devreload/internal/artifact"
	"github.com/conneroisu/devreload/internal/build"
	"github.com/conneroisu/devreload/internal/errors"
	"github.com/conneroisu/devreload/internal/render"
	"github.com/conneroisu/devreload/internal/version"
)

const sourceContentType = "application/javascript"

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

// serveArtifact serves the current content of a named artifact. Before the
// first successful build the artifact does not exist and the response is 404.
func (s *DevServer) serveArtifact(name artifact.Name) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := s.store.Read(name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				http.NotFound(w, r)
				return
			}
			s.logger.Error(r.Context(), err, "Failed to read artifact", "artifact", string(name))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		noStore(w)
		w.Header().Set("Content-Type", name.ContentType())
		writeBody(w, r, data)
	}
}

// handleSource serves a raw file from the source tree. The path is cleaned
// against "/" first so ".." segments cannot climb above the tree root.
func (s *DevServer) handleSource(w http.ResponseWriter, r *http.Request) {
	rel := path.Clean("/" + chi.URLParam(r, "*"))
	if rel == "/" || s.source == nil {
		http.NotFound(w, r)
		return
	}

	info, err := s.source.Stat(rel)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	data, err := afero.ReadFile(s.source, rel)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	noStore(w)
	w.Header().Set("Content-Type", sourceContentType)
	writeBody(w, r, data)
}

// writeBody sends data, or only its length for HEAD requests.
func writeBody(w http.ResponseWriter, r *http.Request, data []byte) {
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	_, _ = w.Write(data)
}

// handleOutput serves any other file under the output directory.
func (s *DevServer) handleOutput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}

	f, info, err := s.store.Open(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	noStore(w)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *DevServer) handleRuntime(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", sourceContentType)
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(render.Runtime)
}

// StatusResponse is the body of /_dev/status.
type StatusResponse struct {
	Status    string                        `json:"status"`
	Stages    map[string]errors.StageStatus `json:"stages"`
	Builds    build.MetricsSnapshot         `json:"builds"`
	Clients   int                           `json:"clients"`
	Timestamp time.Time                     `json:"timestamp"`
}

func (s *DevServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.status.HasErrors() {
		status = "error"
	}

	clients := 0
	if s.hub != nil {
		clients = s.hub.Count()
	}

	response := StatusResponse{
		Status:    status,
		Stages:    s.status.Snapshot(),
		Builds:    s.metrics.GetSnapshot(),
		Clients:   clients,
		Timestamp: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	noStore(w)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode status response")
	}
}

// handleHealth returns the server health status for health checks
func (s *DevServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]interface{}{
		"server": map[string]interface{}{"status": "healthy", "uptime": time.Since(s.started).String()},
	}
	for _, name := range artifact.All {
		state := "missing"
		if s.store.Exists(name) {
			state = "present"
		}
		checks[string(name)] = map[string]interface{}{"status": state}
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"build_info": version.GetBuildInfo(),
		"checks":     checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}
