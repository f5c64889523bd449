package extension

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/internal/logger"
)

// Builtin returns the factory table every member ships with.
//
//	listeners: noop, counting, log
//	loaders:   static{"value"}, echo{"prefix"}
//	writers:   readonly, reject-prefix{"prefix"}, log
func Builtin(log *zap.Logger) *Factories {
	if log == nil {
		log = logger.Named("extension")
	}
	f := NewFactories()
	f.RegisterListener("noop", func(map[string]string) (Listener, error) { return NoopListener{}, nil })
	f.RegisterListener("counting", func(map[string]string) (Listener, error) { return &CountingListener{}, nil })
	f.RegisterListener("log", func(args map[string]string) (Listener, error) {
		return &logListener{log: log.Named("listener"), tag: args["tag"]}, nil
	})

	f.RegisterLoader("static", func(args map[string]string) (CacheLoader, error) {
		v, ok := args["value"]
		if !ok {
			return nil, fmt.Errorf("static loader requires a \"value\" argument")
		}
		return staticLoader(v), nil
	})
	f.RegisterLoader("echo", func(args map[string]string) (CacheLoader, error) {
		return echoLoader{prefix: args["prefix"]}, nil
	})

	f.RegisterWriter("readonly", func(map[string]string) (Writer, error) { return readOnlyWriter{}, nil })
	f.RegisterWriter("reject-prefix", func(args map[string]string) (Writer, error) {
		p := args["prefix"]
		if p == "" {
			return nil, fmt.Errorf("reject-prefix writer requires a \"prefix\" argument")
		}
		return rejectPrefixWriter{prefix: p}, nil
	})
	f.RegisterWriter("log", func(args map[string]string) (Writer, error) {
		return &logWriter{log: log.Named("writer"), tag: args["tag"]}, nil
	})
	return f
}

type NoopListener struct{}

func (NoopListener) AfterEvent(context.Context, Event) {}

// CountingListener counts the events it has seen.
type CountingListener struct{ n atomic.Int64 }

func (c *CountingListener) AfterEvent(context.Context, Event) { c.n.Add(1) }

func (c *CountingListener) Count() int64 { return c.n.Load() }

type logListener struct {
	log *zap.Logger
	tag string
}

func (l *logListener) AfterEvent(_ context.Context, ev Event) {
	l.log.Info("entry event",
		zap.String("tag", l.tag),
		zap.String("region", ev.Region),
		zap.String("key", ev.Key),
		zap.Stringer("op", ev.Op),
		zap.Bool("loaded", ev.Loaded))
}

type staticLoader string

func (s staticLoader) Load(context.Context, string, string) ([]byte, bool, error) {
	return []byte(s), true, nil
}

type echoLoader struct{ prefix string }

func (e echoLoader) Load(_ context.Context, _, key string) ([]byte, bool, error) {
	return []byte(e.prefix + key), true, nil
}

type readOnlyWriter struct{}

func (readOnlyWriter) BeforeEvent(_ context.Context, ev Event) error {
	return fmt.Errorf("%w: region %q is read-only", ErrVetoed, ev.Region)
}

type rejectPrefixWriter struct{ prefix string }

func (w rejectPrefixWriter) BeforeEvent(_ context.Context, ev Event) error {
	if strings.HasPrefix(ev.Key, w.prefix) {
		return fmt.Errorf("%w: key %q has rejected prefix %q", ErrVetoed, ev.Key, w.prefix)
	}
	return nil
}

type logWriter struct {
	log *zap.Logger
	tag string
}

func (l *logWriter) BeforeEvent(_ context.Context, ev Event) error {
	l.log.Debug("entry write",
		zap.String("tag", l.tag),
		zap.String("region", ev.Region),
		zap.String("key", ev.Key),
		zap.Stringer("op", ev.Op))
	return nil
}
