// Package node is one member process: it hosts regions and artifacts, applies
// alterations locally and coordinates cluster-wide operations over HTTP.
package node

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/internal/logger"
	"github.com/ryandielhenn/zephyrgrid/pkg/alter"
	"github.com/ryandielhenn/zephyrgrid/pkg/command"
	"github.com/ryandielhenn/zephyrgrid/pkg/deploy"
	"github.com/ryandielhenn/zephyrgrid/pkg/extension"
	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
	"github.com/ryandielhenn/zephyrgrid/pkg/region"
)

type Options struct {
	Self      membership.Member
	Regions   *region.Set
	Artifacts *deploy.Registry
	Factories *extension.Factories
	Members   *membership.Registry
	// Remote reaches other members. Nil means HTTP with a default client.
	Remote  Remote
	Timeout time.Duration
	// SyncTimeout bounds each artifact push to a joining member.
	SyncTimeout time.Duration
	Parallel    int
	Log         *zap.Logger
}

type Node struct {
	self       membership.Member
	regions    *region.Set
	artifacts  *deploy.Registry
	loader     *extension.Loader
	installer  *deploy.Installer
	engine     *alter.Engine
	members    *membership.Registry
	dist       *deploy.Distributor
	dispatcher *command.Dispatcher
	log        *zap.Logger
}

// New wires the member-local pieces and the coordinator around one artifact
// registry. The same registry is the member's installed copy and, when this
// member coordinates a deploy, the source of new versions.
func New(opts Options) *Node {
	log := opts.Log
	if log == nil {
		log = logger.Named("node")
	}
	log = log.With(logger.MemberID(opts.Self.ID))
	if opts.Remote == nil {
		opts.Remote = NewHTTPTransport(&http.Client{})
	}
	if opts.Factories == nil {
		opts.Factories = extension.Builtin(log)
	}

	n := &Node{
		self:      opts.Self,
		regions:   opts.Regions,
		artifacts: opts.Artifacts,
		members:   opts.Members,
		log:       log,
	}
	n.loader = extension.NewLoader(opts.Artifacts, opts.Factories, log.Named("loader"))
	n.installer = deploy.NewInstaller(opts.Artifacts, n.loader, log.Named("installer"))
	n.engine = alter.NewEngine(opts.Self.ID, opts.Regions, n.loader, log.Named("alter"))

	tr := &memberTransport{self: opts.Self.ID, local: n, remote: opts.Remote}
	n.dist = deploy.NewDistributor(opts.Artifacts, opts.Members, tr, deploy.Options{
		Timeout:     opts.Timeout,
		SyncTimeout: opts.SyncTimeout,
		Parallel:    opts.Parallel,
		Validator:   n.loader,
		Log:         log.Named("distributor"),
	})
	n.dispatcher = command.NewDispatcher(opts.Members, tr, command.Options{
		Timeout:  opts.Timeout,
		Parallel: opts.Parallel,
		Log:      log.Named("dispatcher"),
	})
	return n
}

func (n *Node) Self() membership.Member { return n.self }

func (n *Node) Regions() *region.Set { return n.regions }

func (n *Node) Dispatcher() *command.Dispatcher { return n.dispatcher }

func (n *Node) Distributor() *deploy.Distributor { return n.dist }

func (n *Node) Installer() *deploy.Installer { return n.installer }
