package node

import (
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/internal/logger"
	"github.com/ryandielhenn/zephyrgrid/pkg/command"
	"github.com/ryandielhenn/zephyrgrid/pkg/deploy"
	"github.com/ryandielhenn/zephyrgrid/pkg/extension"
	"github.com/ryandielhenn/zephyrgrid/pkg/region"
)

// Healthz returns 200 OK to indicate the member is alive.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type InfoResponse struct {
	ID        string    `json:"id"`
	Addr      string    `json:"addr"`
	Groups    []string  `json:"groups,omitempty"`
	PID       int       `json:"pid"`
	Now       time.Time `json:"now"`
	Regions   []string  `json:"regions"`
	Artifacts int       `json:"artifacts"`
	Members   int       `json:"members"`
}

// Info writes what this member hosts.
func (n *Node) Info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		ID:        n.self.ID,
		Addr:      n.self.Addr,
		Groups:    n.self.Groups,
		PID:       os.Getpid(),
		Now:       time.Now(),
		Regions:   n.regions.Names(),
		Artifacts: len(n.artifacts.Latest()),
		Members:   len(n.members.Members()),
	})
}

// ---- member-internal routes, called by the coordinating member ----

// InternalAlter applies a flat descriptor to the local region.
func (n *Node) InternalAlter(w http.ResponseWriter, req *http.Request) {
	var flat map[string]string
	if err := json.NewDecoder(req.Body).Decode(&flat); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d, err := command.ParseFlat(flat)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, n.engine.Apply(req.Context(), d))
}

// InternalInstall validates and stores a pushed artifact.
func (n *Node) InternalInstall(w http.ResponseWriter, req *http.Request) {
	var a deploy.Artifact
	if err := json.NewDecoder(req.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := n.installer.Install(a); err != nil {
		writeError(w, deployStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (n *Node) InternalUninstall(w http.ResponseWriter, req *http.Request) {
	if err := n.installer.Uninstall(req.PathValue("name")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- regions ----

func (n *Node) ListRegions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, n.regions.Names())
}

// CreateRegion creates the region on this member; an existing region is returned as is.
func (n *Node) CreateRegion(w http.ResponseWriter, req *http.Request) {
	r, created, err := n.regions.Create(req.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, r.Describe())
}

func (n *Node) DescribeRegion(w http.ResponseWriter, req *http.Request) {
	r, ok := n.regions.Get(req.PathValue("name"))
	if !ok {
		http.NotFound(w, req)
		return
	}
	writeJSON(w, http.StatusOK, r.Describe())
}

func (n *Node) DestroyRegion(w http.ResponseWriter, req *http.Request) {
	if !n.regions.Remove(req.PathValue("name")) {
		http.NotFound(w, req)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- region entries ----

func (n *Node) entryRegion(w http.ResponseWriter, req *http.Request) (*region.Region, string, bool) {
	r, ok := n.regions.Get(req.PathValue("region"))
	if !ok {
		http.Error(w, "no such region", http.StatusNotFound)
		return nil, "", false
	}
	key := req.PathValue("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return nil, "", false
	}
	return r, key, true
}

// Put stores the request body under the key.
func (n *Node) Put(w http.ResponseWriter, req *http.Request) {
	r, key, ok := n.entryRegion(w, req)
	if !ok {
		return
	}
	val, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := r.Put(req.Context(), key, val); err != nil {
		entryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get returns the value for a key, loading it on a miss when the region has a loader.
func (n *Node) Get(w http.ResponseWriter, req *http.Request) {
	r, key, ok := n.entryRegion(w, req)
	if !ok {
		return
	}
	val, ok, err := r.Get(req.Context(), key)
	if err != nil {
		n.log.Warn("cache loader failed", logger.Region(r.Name()), zap.String("key", key), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if !ok {
		http.NotFound(w, req)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(val)
}

// Del removes a key
func (n *Node) Del(w http.ResponseWriter, req *http.Request) {
	r, key, ok := n.entryRegion(w, req)
	if !ok {
		return
	}
	if _, err := r.Delete(req.Context(), key); err != nil {
		entryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func entryError(w http.ResponseWriter, err error) {
	if errors.Is(err, extension.ErrVetoed) {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
