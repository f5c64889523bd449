package node

import (
	"net/http"

	"github.com/ryandielhenn/zephyrgrid/internal/telemetry"
)

// Routes returns the member's HTTP surface.
func (n *Node) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(pattern, op string, h http.HandlerFunc) {
		mux.Handle(pattern, telemetry.Instrument(op, h))
	}

	mux.HandleFunc("GET /healthz", n.Healthz)
	mux.HandleFunc("GET /info", n.Info)
	mux.Handle("GET /metrics", telemetry.MetricsHandler())

	// coordinator
	handle("POST /v1/alter-region", "alter_region", n.AlterRegion)
	handle("POST /v1/deployments/{name}", "deploy", n.Deploy)
	handle("GET /v1/deployments", "list_deployed", n.ListDeployed)
	handle("DELETE /v1/deployments/{name}", "undeploy", n.Undeploy)
	handle("GET /v1/members", "list_members", n.ListMembers)

	// member-internal
	handle("POST /v1/internal/alter", "internal_alter", n.InternalAlter)
	handle("POST /v1/internal/artifacts", "internal_install", n.InternalInstall)
	handle("DELETE /v1/internal/artifacts/{name}", "internal_uninstall", n.InternalUninstall)

	handle("GET /v1/regions", "list_regions", n.ListRegions)
	handle("POST /v1/regions/{name}", "create_region", n.CreateRegion)
	handle("GET /v1/regions/{name}", "describe_region", n.DescribeRegion)
	handle("DELETE /v1/regions/{name}", "destroy_region", n.DestroyRegion)

	handle("GET /kv/{region}/{key...}", "get", n.Get)
	handle("PUT /kv/{region}/{key...}", "put", n.Put)
	handle("POST /kv/{region}/{key...}", "post", n.Put)
	handle("DELETE /kv/{region}/{key...}", "delete", n.Del)
	return mux
}
