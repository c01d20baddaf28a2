package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/rss-sync/internal/broadcast"
)

// Scheduler runs an update cycle over all enabled feeds at a fixed interval
// and once at start. Manual triggers go through the same coordinator, so a
// feed is never updated twice at the same time whatever started the update.
type Scheduler struct {
	coordinator *Coordinator
	registry    DefinitionSource
	broadcaster broadcast.Broadcaster
	interval    time.Duration
	workerCount int

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(coordinator *Coordinator, registry DefinitionSource, broadcaster broadcast.Broadcaster, interval time.Duration, workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		coordinator: coordinator,
		registry:    registry,
		broadcaster: broadcaster,
		interval:    interval,
		workerCount: max(workerCount, 1),
		cron:        cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Scheduler) Start() {
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.UpdateAll(s.ctx, false)
	}))
	s.cron.Start()

	s.Go(func(ctx context.Context) {
		s.UpdateAll(ctx, false)
	})

	slog.Info("Scheduler started", "interval", s.interval, "workers", s.workerCount)
}

// Stop cancels in-flight updates and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

// Go runs fn in the background with the scheduler's context. Stop waits for
// it to return.
func (s *Scheduler) Go(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// UpdateAll runs one cycle over the enabled feeds with at most workerCount
// feeds in flight and returns one Outcome per feed, in registry order.
func (s *Scheduler) UpdateAll(ctx context.Context, force bool) []Outcome {
	task := NewTask(TaskTypeUpdateFeeds, "", force)
	task.Start()

	defs := s.registry.Enabled()
	outcomes := make([]Outcome, len(defs))

	s.broadcaster.Broadcast(broadcast.FeedsUpdateStarted)

	var g errgroup.Group
	g.SetLimit(s.workerCount)
	for i, def := range defs {
		g.Go(func() error {
			outcomes[i] = s.coordinator.Update(ctx, def, force, func() {
				s.broadcaster.Broadcast(broadcast.FeedsUpdateRunning)
			})
			return nil
		})
	}
	_ = g.Wait()

	s.broadcaster.Broadcast(broadcast.FeedsUpdateFinished)
	cyclesTotal.Inc()

	counts := lo.CountValuesBy(outcomes, func(o Outcome) Status { return o.Status })
	slog.Info("Task completed",
		"type", task.Type,
		"id", task.ID,
		"force", force,
		"duration", task.GetDuration(),
		"feeds", len(defs),
		"updated", counts[StatusUpdated],
		"unchanged", counts[StatusUnchanged],
		"skipped", counts[StatusSkippedLocked],
		"failed", counts[StatusFailed])

	return outcomes
}

// UpdateOne updates a single enabled feed. Unknown and disabled feeds yield
// a failed Outcome wrapping ErrFeedNotFound or ErrFeedDisabled.
func (s *Scheduler) UpdateOne(ctx context.Context, id int64, force bool) Outcome {
	def, ok := s.registry.Get(id)
	if !ok {
		slog.Warn("Update requested for unknown feed", "id", id)
		return Outcome{FeedID: id, Status: StatusFailed, Err: ErrFeedNotFound}
	}
	if !def.Enabled() {
		slog.Warn("Update requested for disabled feed", "id", id, "feed", def.URL)
		return Outcome{FeedID: id, URL: def.URL, Status: StatusFailed, Err: ErrFeedDisabled}
	}

	s.broadcaster.Broadcast(broadcast.FeedUpdateStarted)
	outcome := s.coordinator.Update(ctx, def, force, func() {
		s.broadcaster.Broadcast(broadcast.FeedUpdateRunning)
	})
	s.broadcaster.Broadcast(broadcast.FeedUpdateFinished)

	return outcome
}
