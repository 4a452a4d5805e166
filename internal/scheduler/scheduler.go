// Package scheduler runs periodic maintenance: schema re-indexing and idle session pruning.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"querybot/internal/common/logger"

	"github.com/robfig/cron/v3"
)

// Disabled turns a job off.
const Disabled = "-"

const jobTimeout = 10 * time.Minute

// SchemaRefresher rebuilds the table index.
type SchemaRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// SessionPruner drops sessions idle for longer than the given duration.
type SessionPruner interface {
	Prune(ctx context.Context, idle time.Duration) (int, error)
}

type Config struct {
	SchemaRefresh string
	SessionPrune  string
	IdleTimeout   time.Duration
}

type Scheduler struct {
	cron    *cron.Cron
	log     logger.Logger
	mu      sync.Mutex
	running map[string]bool
}

// New registers the enabled jobs. Nothing runs until Start.
func New(cfg Config, refresher SchemaRefresher, pruner SessionPruner, log logger.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		log:     log,
		running: make(map[string]bool),
	}

	if refresher != nil {
		if err := s.add("schema_refresh", cfg.SchemaRefresh, func(ctx context.Context) error {
			n, err := refresher.Refresh(ctx)
			if err == nil {
				s.log.Info("Schema index refreshed", map[string]interface{}{"tables": n})
			}
			return err
		}); err != nil {
			return nil, err
		}
	}

	if pruner != nil && cfg.IdleTimeout > 0 {
		if err := s.add("session_prune", cfg.SessionPrune, func(ctx context.Context) error {
			n, err := pruner.Prune(ctx, cfg.IdleTimeout)
			if err == nil && n > 0 {
				s.log.Info("Pruned idle sessions", map[string]interface{}{"sessions": n})
			}
			return err
		}); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) add(name, spec string, job func(ctx context.Context) error) error {
	if spec == "" || spec == Disabled {
		s.log.Info("Scheduled job disabled", map[string]interface{}{"job": name})
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule for %s: %w", name, err)
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
		return fmt.Errorf("failed to add %s job: %w", name, err)
	}
	s.log.Info("Scheduled job registered", map[string]interface{}{"job": name, "schedule": spec})
	return nil
}

// run executes job unless a previous run of the same job is still going.
func (s *Scheduler) run(name string, job func(ctx context.Context) error) {
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		s.log.Warn("Skipping job, previous run still active", map[string]interface{}{"job": name})
		return
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.log.Error("Scheduled job failed", map[string]interface{}{
			"job":        name,
			"error":      err.Error(),
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
