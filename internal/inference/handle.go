package inference

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// LoaderFunc builds a classifier from its backing artifact.
type LoaderFunc func() (Classifier, error)

// ErrModelUnavailable is returned by Handle.Get when no classifier is
// loaded and a reload attempt failed.
var ErrModelUnavailable = errors.New("model unavailable")

type loaded struct {
	classifier Classifier
}

// Handle owns the process-wide classifier. A classifier is published once
// fully built and is never unloaded; concurrent reload attempts collapse into
// a single load.
type Handle struct {
	current atomic.Pointer[loaded]
	load    LoaderFunc
	group   singleflight.Group
	logger  *slog.Logger
}

// NewHandle creates an empty handle. Call Load to attempt the startup load.
func NewHandle(load LoaderFunc, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{load: load, logger: logger}
}

// NewStaticHandle returns a handle that already holds c. Useful for tests
// and for embedding a classifier built elsewhere.
func NewStaticHandle(c Classifier) *Handle {
	h := &Handle{logger: slog.Default()}
	h.current.Store(&loaded{classifier: c})
	return h
}

// Load attempts to load the classifier now. A failure leaves the handle
// empty; the next Get retries.
func (h *Handle) Load(ctx context.Context) error {
	_, err := h.reload(ctx)
	return err
}

// Current returns the published classifier without attempting a reload.
func (h *Handle) Current() (Classifier, bool) {
	if l := h.current.Load(); l != nil {
		return l.classifier, true
	}
	return nil, false
}

// Get returns the published classifier, making one reload attempt if none
// is loaded yet.
func (h *Handle) Get(ctx context.Context) (Classifier, error) {
	if c, ok := h.Current(); ok {
		return c, nil
	}
	return h.reload(ctx)
}

func (h *Handle) reload(ctx context.Context) (Classifier, error) {
	if h.load == nil {
		return nil, ErrModelUnavailable
	}

	v, err, _ := h.group.Do("load", func() (any, error) {
		// Another caller may have published while we waited to enter.
		if l := h.current.Load(); l != nil {
			return l.classifier, nil
		}
		c, err := h.load()
		if err != nil {
			return nil, err
		}
		h.current.Store(&loaded{classifier: c})
		h.logger.InfoContext(ctx, "model loaded", "classes", c.Classes())
		return c, nil
	})
	if err != nil {
		h.logger.WarnContext(ctx, "model load failed", "error", err)
		return nil, errors.Join(ErrModelUnavailable, err)
	}
	return v.(Classifier), nil
}
