package watcher

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ChangeHandler is called with a debounced batch of changes. Returning an
// error requeues the batch on the watcher so the next poll reports it again.
type ChangeHandler func(report *ChangeReport, impact ChangeImpact) error

// Poller runs CheckForChanges on an interval and hands merged reports to a
// handler once the configuration has been quiet for the debounce delay.
type Poller struct {
	watcher   *Watcher
	interval  time.Duration
	debouncer *Debouncer
	handler   ChangeHandler

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a poller. Non-positive durations fall back to 2s polling
// and no debounce delay.
func NewPoller(w *Watcher, interval, debounce time.Duration, handler ChangeHandler) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if debounce < 0 {
		debounce = 0
	}
	p := &Poller{
		watcher:  w,
		interval: interval,
		handler:  handler,
	}
	p.debouncer = NewDebouncer(debounce, p.emit)
	return p
}

// Start begins polling in the background until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return errors.New("poller already running")
	}
	ctx, p.cancel = context.WithCancel(ctx)

	p.watcher.logger.Info("Starting configuration poller",
		"root", p.watcher.root,
		"interval", p.interval,
	)

	p.wg.Add(1)
	go p.loop(ctx)
	return nil
}

// Stop halts polling and delivers any batch still waiting on the debouncer.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.debouncer.Flush()
	p.watcher.logger.Info("Configuration poller stopped", "root", p.watcher.root)
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Poll()
		case <-ctx.Done():
			return
		}
	}
}

// Poll runs one change check and queues a non-empty result.
func (p *Poller) Poll() {
	report, err := p.watcher.CheckForChanges()
	if err != nil {
		p.watcher.logger.Warn("Change check failed", "root", p.watcher.root, "error", err)
		return
	}
	p.debouncer.Add(report)
}

func (p *Poller) emit(report *ChangeReport) {
	impact := p.watcher.AnalyzeChangeImpact(report)
	p.watcher.logger.Debug("Configuration changes detected",
		"root", p.watcher.root,
		"files", len(report.Paths()),
		"impact", impact.String(),
	)
	if p.handler == nil {
		return
	}
	if err := p.handler(report, impact); err != nil {
		p.watcher.logger.Warn("Change handler failed, changes requeued",
			"root", p.watcher.root,
			"error", err,
		)
		p.watcher.Requeue(report)
	}
}
