package daemon

import (
	"context"
	"time"

	"github.com/fadeline/chat/internal/chat"
	"go.uber.org/zap"
)

// retentionEvery is how often the poller runs a purge pass. The
// retention window itself comes from configuration.
const retentionEvery = 24 * time.Hour

// Poller refreshes the conversation list on an interval while the
// network is up and runs the retention purge in the background, so
// the store stays warm and bounded without any UI interaction.
type Poller struct {
	manager  *chat.Manager
	online   func() bool
	interval time.Duration
	maxAge   time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller over the given manager.
func NewPoller(m *chat.Manager, online func() bool, interval, maxAge time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		manager:  m,
		online:   online,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
	}
}

// Start launches the loop. An initial purge runs immediately so a
// long-dormant store is trimmed at boot rather than a day later.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)

		p.purge()

		syncTicker := time.NewTicker(p.interval)
		defer syncTicker.Stop()
		purgeTicker := time.NewTicker(retentionEvery)
		defer purgeTicker.Stop()

		for {
			select {
			case <-syncTicker.C:
				p.refresh(ctx)
			case <-purgeTicker.C:
				p.purge()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and waits for it to exit.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

func (p *Poller) refresh(ctx context.Context) {
	if p.online != nil && !p.online() {
		return
	}
	if _, err := p.manager.Conversations(ctx); err != nil && p.logger != nil {
		p.logger.Warn("background conversation refresh failed", zap.Error(err))
	}
}

func (p *Poller) purge() {
	if p.maxAge <= 0 {
		return
	}
	purged, err := p.manager.CleanOldData(p.maxAge)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("retention purge failed", zap.Error(err))
		}
		return
	}
	if purged > 0 && p.logger != nil {
		p.logger.Info("retention purge completed", zap.Int64("messages", purged))
	}
}
