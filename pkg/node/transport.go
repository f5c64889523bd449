package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ryandielhenn/zephyrgrid/pkg/command"
	"github.com/ryandielhenn/zephyrgrid/pkg/deploy"
	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
	"github.com/ryandielhenn/zephyrgrid/pkg/report"
)

// Remote reaches members other than this one.
type Remote interface {
	command.Transport
	deploy.Pusher
}

// HTTPTransport calls the member-internal routes of other members.
type HTTPTransport struct {
	client *http.Client
}

func NewHTTPTransport(client *http.Client) *HTTPTransport {
	return &HTTPTransport{client: client}
}

func memberURL(m membership.Member, path string) string {
	return "http://" + NormalizeHostPort(m.Addr, "8080") + path
}

func (t *HTTPTransport) Apply(ctx context.Context, m membership.Member, d command.Descriptor) (report.Outcome, error) {
	var out report.Outcome
	err := do(ctx, t.client, http.MethodPost, memberURL(m, "/v1/internal/alter"), d.Flatten(), &out)
	return out, err
}

// Push installs a on m. A validation failure on m comes back as deploy.ErrRejected.
func (t *HTTPTransport) Push(ctx context.Context, m membership.Member, a deploy.Artifact) error {
	err := do(ctx, t.client, http.MethodPost, memberURL(m, "/v1/internal/artifacts"), a, nil)
	var se *statusError
	if errors.As(err, &se) && se.Code == http.StatusUnprocessableEntity {
		return fmt.Errorf("%w: %s", deploy.ErrRejected, se.Msg)
	}
	return err
}

func (t *HTTPTransport) Remove(ctx context.Context, m membership.Member, name string) error {
	return do(ctx, t.client, http.MethodDelete, memberURL(m, "/v1/internal/artifacts/"+url.PathEscape(name)), nil, nil)
}

// memberTransport serves this member in process and every other over Remote.
type memberTransport struct {
	self   string
	local  *Node
	remote Remote
}

func (t *memberTransport) Apply(ctx context.Context, m membership.Member, d command.Descriptor) (report.Outcome, error) {
	if m.ID == t.self {
		return t.local.engine.Apply(ctx, d), nil
	}
	return t.remote.Apply(ctx, m, d)
}

func (t *memberTransport) Push(ctx context.Context, m membership.Member, a deploy.Artifact) error {
	if m.ID == t.self {
		return t.local.installer.Install(a)
	}
	return t.remote.Push(ctx, m, a)
}

func (t *memberTransport) Remove(ctx context.Context, m membership.Member, name string) error {
	if m.ID == t.self {
		return t.local.installer.Uninstall(name)
	}
	return t.remote.Remove(ctx, m, name)
}
