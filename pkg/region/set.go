package region

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/internal/logger"
)

var ErrInvalidName = errors.New("region: invalid name")

// Set holds the regions hosted by one member.
type Set struct {
	mu       sync.RWMutex
	regions  map[string]*Region
	capacity int
	ttl      time.Duration
	log      *zap.Logger
}

// NewSet creates an empty set whose regions each hold up to capacityBytes of
// values. A zero ttl keeps entries until evicted.
func NewSet(capacityBytes int, ttl time.Duration, log *zap.Logger) *Set {
	if log == nil {
		log = logger.Named("region")
	}
	return &Set{regions: map[string]*Region{}, capacity: capacityBytes, ttl: ttl, log: log}
}

// Create returns the named region, creating it if needed. created reports
// whether this call made it.
func (s *Set) Create(name string) (r *Region, created bool, err error) {
	name = Normalize(name)
	if name == "" {
		return nil, false, fmt.Errorf("%w: empty", ErrInvalidName)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.regions[name]; ok {
		return r, false, nil
	}
	r = newRegion(name, s.capacity, s.ttl, s.log)
	s.regions[name] = r
	s.log.Info("region created", logger.Region(name))
	return r, true, nil
}

func (s *Set) Get(name string) (*Region, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regions[Normalize(name)]
	return r, ok
}

func (s *Set) Remove(name string) bool {
	name = Normalize(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regions[name]; !ok {
		return false
	}
	delete(s.regions, name)
	s.log.Info("region destroyed", logger.Region(name))
	return true
}

// Names lists hosted regions in ascending order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.regions))
}
