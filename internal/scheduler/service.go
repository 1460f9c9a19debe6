package scheduler

import (
	"context"
	"sync"
	"time"

	rtsup "reaperd/internal/runtime/supervisor"
	logx "reaperd/pkg/logx"
)

// ServiceConfig controls the poll loop around the engine.
type ServiceConfig struct {
	Enabled bool
	// Poll is an interval ("60s") or cron spec ("cron:*/1 * * * *").
	Poll PollSpec
}

// Service drives Engine.Tick on the configured schedule.
//
// Ticks never overlap: the loop runs one tick to completion and only then
// waits for the next slot. A slot that passes while a tick is still running
// is skipped, not queued.
type Service struct {
	mu  sync.Mutex
	cfg ServiceConfig

	engine *Engine
	log    logx.Logger
	sup    *rtsup.Supervisor
}

func NewService(cfg ServiceConfig, engine *Engine, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, engine: engine, log: log}
}

func (s *Service) Apply(cfg ServiceConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.sup != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "scheduler"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("poll", func(c context.Context) error {
		s.pollLoop(c)
		return c.Err()
	})
	s.log.Info("poll loop started", logx.String("spec", s.pollSpec().Raw))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	_ = sup.Stop(ctx)
	s.log.Info("poll loop stopped")
}

func (s *Service) pollSpec() PollSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec := s.cfg.Poll
	if spec.Kind == SpecInterval && spec.Every <= 0 {
		spec.Every = time.Minute
	}
	return spec
}

func (s *Service) pollLoop(ctx context.Context) {
	for {
		// Re-read the spec every iteration so config reloads apply without a
		// loop restart.
		next := s.pollSpec().Next(time.Now())
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return
		case <-t.C:
		}

		s.TickNow(ctx)
	}
}

// TickNow runs one tick immediately with a freshly captured timestamp.
// Exposed for tests and for operator-triggered sweeps.
func (s *Service) TickNow(ctx context.Context) {
	started := time.Now()
	if err := s.engine.Tick(ctx, started); err != nil {
		s.log.Error("tick failed", logx.Err(err))
		return
	}
	if d := time.Since(started); d >= time.Second {
		s.log.Info("tick completed", logx.Duration("took", d))
	} else {
		s.log.Debug("tick completed", logx.Duration("took", d))
	}
}
