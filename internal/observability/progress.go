package observability

import (
	"log/slog"
	"math"
	"sync"

	"github.com/qri-io/geode"
)

// LogProgress reports completion through a logger, once per step.
type LogProgress struct {
	logger *slog.Logger
	step   float64

	mu   sync.Mutex
	next float64
}

var _ geode.Progress = (*LogProgress)(nil)

// NewLogProgress logs whenever completion crosses a multiple of step, which
// defaults to 10%.
func NewLogProgress(logger *slog.Logger, step float64) *LogProgress {
	if step <= 0 || step > 1 {
		step = 0.1
	}
	return &LogProgress{logger: logger, step: step}
}

// Update implements geode.Progress.
func (p *LogProgress) Update(fraction float64, message string) {
	fraction = min(max(fraction, 0), 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if fraction < p.next {
		return
	}
	p.next = (math.Floor(fraction/p.step) + 1) * p.step
	p.logger.Info("progress", "percent", math.Round(fraction*100), "step", message)
}
