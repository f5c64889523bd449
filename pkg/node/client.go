package node

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ryandielhenn/zephyrgrid/pkg/command"
	"github.com/ryandielhenn/zephyrgrid/pkg/deploy"
	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
	"github.com/ryandielhenn/zephyrgrid/pkg/region"
	"github.com/ryandielhenn/zephyrgrid/pkg/report"
)

// Client calls a member's coordinator routes.
type Client struct {
	base string
	http *http.Client
}

func NewClient(addr string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{base: "http://" + NormalizeHostPort(addr, "8080"), http: hc}
}

func (c *Client) AlterRegion(ctx context.Context, d command.Descriptor) (report.Report, error) {
	var rep report.Report
	err := do(ctx, c.http, http.MethodPost, c.base+"/v1/alter-region", d.Flatten(), &rep)
	return rep, err
}

func (c *Client) Deploy(ctx context.Context, name string, content []byte) (DeployResponse, error) {
	var out DeployResponse
	err := do(ctx, c.http, http.MethodPost, c.base+"/v1/deployments/"+url.PathEscape(name), content, &out)
	return out, err
}

func (c *Client) ListDeployed(ctx context.Context) ([]deploy.Artifact, error) {
	var out []deploy.Artifact
	err := do(ctx, c.http, http.MethodGet, c.base+"/v1/deployments", nil, &out)
	return out, err
}

func (c *Client) Undeploy(ctx context.Context, name string) (report.Report, error) {
	var rep report.Report
	err := do(ctx, c.http, http.MethodDelete, c.base+"/v1/deployments/"+url.PathEscape(name), nil, &rep)
	return rep, err
}

func (c *Client) ListMembers(ctx context.Context) ([]membership.Member, error) {
	var out []membership.Member
	err := do(ctx, c.http, http.MethodGet, c.base+"/v1/members", nil, &out)
	return out, err
}

func (c *Client) CreateRegion(ctx context.Context, name string) (region.Description, error) {
	var out region.Description
	err := do(ctx, c.http, http.MethodPost, c.base+"/v1/regions/"+url.PathEscape(region.Normalize(name)), nil, &out)
	return out, err
}

func (c *Client) DescribeRegion(ctx context.Context, name string) (region.Description, error) {
	var out region.Description
	err := do(ctx, c.http, http.MethodGet, c.base+"/v1/regions/"+url.PathEscape(region.Normalize(name)), nil, &out)
	return out, err
}
