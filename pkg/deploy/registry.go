// Package deploy stores versioned deployment artifacts and distributes them
// to cluster members.
//
// The coordinator deploys (assigning versions); every member installs copies
// of exactly those versions into its own Registry.
package deploy

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/internal/logger"
	"github.com/ryandielhenn/zephyrgrid/internal/telemetry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrUnknownArtifact = errors.New("deploy: unknown artifact")
	ErrEmptyContent    = errors.New("deploy: empty artifact content")
	ErrInvalidName     = errors.New("deploy: invalid artifact name")
	ErrDigestMismatch  = errors.New("deploy: content digest mismatch")
	// ErrRejected marks an artifact that failed load-only validation.
	ErrRejected = errors.New("deploy: artifact rejected")
)

const (
	collection = "artifact"
	sepa       = "##"
)

// Artifact is immutable once stored.
type Artifact struct {
	Name       string    `json:"name"`
	Version    uint64    `json:"version"`
	Content    []byte    `json:"content,omitempty"`
	Digest     uint64    `json:"digest"`
	Size       int       `json:"size"`
	DeployedAt time.Time `json:"deployed_at"`
}

// Digest is the content checksum used to detect identical re-deploys.
func Digest(content []byte) uint64 { return xxhash.Sum64(content) }

// Result of a Deploy call.
type Result struct {
	Artifact Artifact
	// Unchanged reports that the bytes already existed under Artifact.Version.
	Unchanged bool
}

// catalog is an immutable snapshot: name -> versions ascending.
type catalog map[string][]Artifact

type Registry struct {
	mu   sync.Mutex
	db   *buntdb.DB
	snap atomic.Pointer[catalog]
	gen  atomic.Uint64
	log  *zap.Logger
	now  func() time.Time
}

// Open opens (or creates) the registry at path; ":memory:" keeps it in memory.
func Open(path string, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = logger.Named("deploy")
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("deploy: open %s: %w", path, err)
	}
	r := &Registry{db: db, log: log, now: time.Now}
	cat := catalog{}
	var decodeErr error
	err = db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(collection+sepa+"*", func(_, v string) bool {
			var a Artifact
			if decodeErr = json.Unmarshal([]byte(v), &a); decodeErr != nil {
				return false
			}
			cat[a.Name] = append(cat[a.Name], a)
			return true
		})
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("deploy: load %s: %w", path, err)
	}
	for name := range cat {
		slices.SortFunc(cat[name], func(a, b Artifact) int { return cmpVersion(a.Version, b.Version) })
	}
	r.snap.Store(&cat)
	return r, nil
}

func (r *Registry) Close() error { return r.db.Close() }

func cmpVersion(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func key(name string, version uint64) string {
	return fmt.Sprintf("%s%s%s%s%020d", collection, sepa, name, sepa, version)
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" || strings.Contains(name, sepa) || strings.ContainsAny(name, "*?") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Deploy stores content under name as the next version. Content identical to
// any stored version of name is a no-op that returns that version.
func (r *Registry) Deploy(name string, content []byte) (Result, error) {
	if err := checkName(name); err != nil {
		telemetry.ArtifactDeploys.WithLabelValues("error").Inc()
		return Result{}, err
	}
	if len(content) == 0 {
		telemetry.ArtifactDeploys.WithLabelValues("error").Inc()
		return Result{}, ErrEmptyContent
	}
	digest := Digest(content)

	r.mu.Lock()
	defer r.mu.Unlock()

	versions := (*r.snap.Load())[name]
	for _, a := range versions {
		if a.Digest == digest && a.Size == len(content) {
			telemetry.ArtifactDeploys.WithLabelValues("unchanged").Inc()
			r.log.Info("identical content already deployed", logger.Artifact(name), logger.Version(a.Version))
			return Result{Artifact: a, Unchanged: true}, nil
		}
	}
	var next uint64 = 1
	if n := len(versions); n > 0 {
		next = versions[n-1].Version + 1
	}
	a := Artifact{
		Name:       name,
		Version:    next,
		Content:    slices.Clone(content),
		Digest:     digest,
		Size:       len(content),
		DeployedAt: r.now().UTC(),
	}
	if err := r.put(a); err != nil {
		telemetry.ArtifactDeploys.WithLabelValues("error").Inc()
		return Result{}, err
	}
	telemetry.ArtifactDeploys.WithLabelValues("new_version").Inc()
	r.log.Info("artifact deployed", logger.Artifact(name), logger.Version(next), zap.Int("size", a.Size))
	return Result{Artifact: a}, nil
}

// Install stores a copy of an artifact versioned elsewhere. Re-installing an
// identical name/version is a no-op.
func (r *Registry) Install(a Artifact) error {
	if err := checkName(a.Name); err != nil {
		return err
	}
	if len(a.Content) == 0 {
		return ErrEmptyContent
	}
	if Digest(a.Content) != a.Digest {
		return fmt.Errorf("%w: %s v%d", ErrDigestMismatch, a.Name, a.Version)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range (*r.snap.Load())[a.Name] {
		if cur.Version == a.Version && cur.Digest == a.Digest {
			return nil
		}
	}
	a.Content = slices.Clone(a.Content)
	a.Size = len(a.Content)
	return r.put(a)
}

// caller holds r.mu
func (r *Registry) put(a Artifact) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	err = r.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key(a.Name, a.Version), string(b), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("deploy: store %s v%d: %w", a.Name, a.Version, err)
	}
	old := *r.snap.Load()
	next := make(catalog, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	versions := slices.DeleteFunc(slices.Clone(old[a.Name]), func(x Artifact) bool { return x.Version == a.Version })
	versions = append(versions, a)
	slices.SortFunc(versions, func(x, y Artifact) int { return cmpVersion(x.Version, y.Version) })
	next[a.Name] = versions
	r.snap.Store(&next)
	r.gen.Add(1)
	return nil
}

// Remove deletes every version of name and reports how many were removed.
func (r *Registry) Remove(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := *r.snap.Load()
	versions, ok := old[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownArtifact, name)
	}
	err := r.db.Update(func(tx *buntdb.Tx) error {
		for _, a := range versions {
			if _, err := tx.Delete(key(a.Name, a.Version)); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("deploy: remove %s: %w", name, err)
	}
	next := make(catalog, len(old))
	for k, v := range old {
		if k != name {
			next[k] = v
		}
	}
	r.snap.Store(&next)
	r.gen.Add(1)
	r.log.Info("artifact removed", logger.Artifact(name), zap.Int("versions", len(versions)))
	return len(versions), nil
}

// Latest returns the newest version of every artifact, ordered by name.
func (r *Registry) Latest() []Artifact {
	cat := *r.snap.Load()
	out := make([]Artifact, 0, len(cat))
	for _, versions := range cat {
		out = append(out, versions[len(versions)-1])
	}
	slices.SortFunc(out, func(a, b Artifact) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (r *Registry) Versions(name string) []Artifact {
	return slices.Clone((*r.snap.Load())[name])
}

func (r *Registry) Get(name string, version uint64) (Artifact, error) {
	for _, a := range (*r.snap.Load())[name] {
		if a.Version == version {
			return a, nil
		}
	}
	return Artifact{}, fmt.Errorf("%w: %s v%d", ErrUnknownArtifact, name, version)
}

// Content returns the bytes and version of the newest version of name.
func (r *Registry) Content(name string) ([]byte, uint64, bool) {
	versions := (*r.snap.Load())[name]
	if len(versions) == 0 {
		return nil, 0, false
	}
	a := versions[len(versions)-1]
	return a.Content, a.Version, true
}

// Generation changes whenever the stored set changes.
func (r *Registry) Generation() uint64 { return r.gen.Load() }

// WithoutContent strips content for listings.
func WithoutContent(as []Artifact) []Artifact {
	out := make([]Artifact, len(as))
	for i, a := range as {
		a.Content = nil
		out[i] = a
	}
	return out
}
