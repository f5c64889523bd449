package extension

import (
	"fmt"
	"sync"
)

type (
	ListenerFactory func(args map[string]string) (Listener, error)
	LoaderFactory   func(args map[string]string) (CacheLoader, error)
	WriterFactory   func(args map[string]string) (Writer, error)
)

// Factories is the table of constructors a member can bind manifest units to.
type Factories struct {
	mu        sync.RWMutex
	listeners map[string]ListenerFactory
	loaders   map[string]LoaderFactory
	writers   map[string]WriterFactory
}

func NewFactories() *Factories {
	return &Factories{
		listeners: map[string]ListenerFactory{},
		loaders:   map[string]LoaderFactory{},
		writers:   map[string]WriterFactory{},
	}
}

func (f *Factories) RegisterListener(name string, fn ListenerFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[name] = fn
}

func (f *Factories) RegisterLoader(name string, fn LoaderFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaders[name] = fn
}

func (f *Factories) RegisterWriter(name string, fn WriterFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writers[name] = fn
}

func (f *Factories) Has(kind Kind, name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	switch kind {
	case KindListener:
		_, ok := f.listeners[name]
		return ok
	case KindLoader:
		_, ok := f.loaders[name]
		return ok
	case KindWriter:
		_, ok := f.writers[name]
		return ok
	}
	return false
}

// construct runs the factory. Panics are converted to errors.
func (f *Factories) construct(kind Kind, name string, args map[string]string) (impl any, err error) {
	f.mu.RLock()
	var fn func() (any, error)
	switch kind {
	case KindListener:
		if c, ok := f.listeners[name]; ok {
			fn = func() (any, error) { return c(args) }
		}
	case KindLoader:
		if c, ok := f.loaders[name]; ok {
			fn = func() (any, error) { return c(args) }
		}
	case KindWriter:
		if c, ok := f.writers[name]; ok {
			fn = func() (any, error) { return c(args) }
		}
	}
	f.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("no %s factory %q", kind, name)
	}
	defer func() {
		if r := recover(); r != nil {
			impl, err = nil, fmt.Errorf("factory %q panicked: %v", name, r)
		}
	}()
	impl, err = fn()
	if err == nil && impl == nil {
		err = fmt.Errorf("factory %q returned nothing", name)
	}
	return impl, err
}
