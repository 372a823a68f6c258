package geode

import (
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultMemoryBudget bounds the bytes materialized per chunk when no
// budget is configured.
const DefaultMemoryBudget int64 = 64 * humanize.MiByte

// elementBytes is the in-memory size of one element.
const elementBytes = 8

// Progress receives completion updates. Attaching one never changes results.
type Progress interface {
	Update(fraction float64, message string)
}

// ChunkObserver is told about every chunk a loop materializes.
type ChunkObserver interface {
	ObserveChunk(elements int, elapsed time.Duration)
}

// Option configures an evaluation.
type Option func(*env)

// WithMemoryBudget bounds the bytes held by one chunk across every array
// driven together.
func WithMemoryBudget(bytes int64) Option {
	return func(e *env) {
		if bytes > 0 {
			e.budget = bytes
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *env) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithProgress(p Progress) Option {
	return func(e *env) {
		if p != nil {
			e.progress = p
		}
	}
}

func WithObserver(o ChunkObserver) Option {
	return func(e *env) { e.observer = o }
}

type env struct {
	budget   int64
	logger   *slog.Logger
	progress Progress
	observer ChunkObserver
}

func newEnv(opts []Option) *env {
	e := &env{
		budget:   DefaultMemoryBudget,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		progress: nopProgress{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// part scopes progress reporting to the [lo, hi) fraction of the parent.
func (e *env) part(lo, hi float64) *env {
	c := *e
	c.progress = partProgress{parent: e.progress, lo: lo, hi: hi}
	return &c
}

type nopProgress struct{}

func (nopProgress) Update(float64, string) {}

type partProgress struct {
	parent Progress
	lo, hi float64
}

func (p partProgress) Update(fraction float64, message string) {
	p.parent.Update(p.lo+fraction*(p.hi-p.lo), message)
}
