package node

import (
	"errors"
	"io"
	"net/http"

	"github.com/ryandielhenn/zephyrgrid/pkg/command"
	"github.com/ryandielhenn/zephyrgrid/pkg/deploy"
	"github.com/ryandielhenn/zephyrgrid/pkg/report"
)

// maxArtifactBytes bounds a deploy request body.
const maxArtifactBytes = 8 << 20

// AlterRegion dispatches a flat descriptor to the members it selects.
func (n *Node) AlterRegion(w http.ResponseWriter, req *http.Request) {
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
	rep, err := n.dispatcher.Dispatch(req.Context(), d)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type DeployResponse struct {
	Name      string `json:"name"`
	Version   uint64 `json:"version"`
	Unchanged bool   `json:"unchanged"`
	// Report is absent when nothing was distributed.
	Report *report.Report `json:"report,omitempty"`
}

// Deploy stores the request body as the next version of the named artifact
// and distributes it.
func (n *Node) Deploy(w http.ResponseWriter, req *http.Request) {
	content, err := io.ReadAll(io.LimitReader(req.Body, maxArtifactBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(content) > maxArtifactBytes {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("artifact too large"))
		return
	}
	res, rep, err := n.dist.Deploy(req.Context(), req.PathValue("name"), content)
	if err != nil {
		writeError(w, deployStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, DeployResponse{
		Name:      res.Artifact.Name,
		Version:   res.Artifact.Version,
		Unchanged: res.Unchanged,
		Report:    rep,
	})
}

// ListDeployed lists the latest version of every artifact, without content.
func (n *Node) ListDeployed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, deploy.WithoutContent(n.artifacts.Latest()))
}

func (n *Node) Undeploy(w http.ResponseWriter, req *http.Request) {
	rep, err := n.dist.Undeploy(req.Context(), req.PathValue("name"))
	if err != nil {
		writeError(w, deployStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (n *Node) ListMembers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, n.members.Members())
}

func deployStatus(err error) int {
	switch {
	case errors.Is(err, deploy.ErrUnknownArtifact):
		return http.StatusNotFound
	case errors.Is(err, deploy.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, deploy.ErrInvalidName), errors.Is(err, deploy.ErrEmptyContent),
		errors.Is(err, deploy.ErrDigestMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
