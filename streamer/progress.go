package streamer

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ProgressNotifier receives the aggregate number of frames still waiting
// to be issued. Begin is called when streaming work appears, Update on
// every following tick while work remains and End once everything has
// settled.
type ProgressNotifier interface {
	Begin(remaining int)
	Update(remaining int)
	End()
}

type nopProgress struct{}

func (nopProgress) Begin(int)  {}
func (nopProgress) Update(int) {}
func (nopProgress) End()       {}

// LogProgress reports streaming progress through a logger. Updates are
// throttled to one per interval; Begin and End are always logged.
type LogProgress struct {
	logger  *zap.Logger
	limiter *rate.Limiter
	started time.Time
}

// NewLogProgress creates a LogProgress. A non-positive interval logs every
// update.
func NewLogProgress(logger *zap.Logger, interval time.Duration) *LogProgress {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &LogProgress{
		logger:  logger.With(zap.String("component", "progress")),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Begin logs the start of a streaming burst.
func (p *LogProgress) Begin(remaining int) {
	p.started = time.Now()
	// Consume the burst token so the first Update waits a full interval.
	p.limiter.Allow()
	p.logger.Info("streaming frames", zap.Int("remaining", remaining))
}

// Update logs the remaining count, at most once per interval.
func (p *LogProgress) Update(remaining int) {
	if !p.limiter.Allow() {
		return
	}
	p.logger.Info("streaming frames", zap.Int("remaining", remaining))
}

// End logs the end of a streaming burst.
func (p *LogProgress) End() {
	p.logger.Info("streaming settled", zap.Duration("elapsed", time.Since(p.started)))
}
