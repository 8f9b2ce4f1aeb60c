package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	campaigndomain "github.com/smallbiznis/matchhub/internal/campaign/domain"
	chatdomain "github.com/smallbiznis/matchhub/internal/chat/domain"
	"github.com/smallbiznis/matchhub/internal/clock"
	obsmetrics "github.com/smallbiznis/matchhub/internal/observability/metrics"
	"github.com/smallbiznis/matchhub/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const lockPrefix = "matchhub:scheduler:"

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	CampaignSvc campaigndomain.Service
	ChatSvc     chatdomain.Service
	Config      Config `optional:"true"`

	Locker   *ratelimit.Locker            `optional:"true"`
	Metrics  *obsmetrics.SchedulerMetrics `optional:"true"`
	Notifier Notifier                     `optional:"true"`
}

type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	campaignSvc campaigndomain.Service
	chatSvc     chatdomain.Service
	locker      *ratelimit.Locker
	metrics     *obsmetrics.SchedulerMetrics
	notifier    Notifier
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.CampaignSvc == nil || p.ChatSvc == nil {
		return nil, ErrInvalidConfig
	}
	log := p.Log.Named("scheduler").With(zap.String("component", "scheduler"))
	notifier := p.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(p.Log)
	}
	return &Scheduler{
		log:         log,
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		campaignSvc: p.CampaignSvc,
		chatSvc:     p.ChatSvc,
		locker:      p.Locker,
		metrics:     p.Metrics,
		notifier:    notifier,
	}, nil
}

// runJob runs fn under the job timeout while holding the job's redis lock.
// When another instance holds the lock the job is skipped for this tick.
func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)

	acquired, err := s.locker.WithLock(ctx, lockPrefix+name, s.cfg.LockTTL, func(ctx context.Context) error {
		if owner {
			s.logJobStart(ctx, run)
		}
		s.metrics.IncJobRun(name)
		err := fn(ctx)
		s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
		if owner {
			if err != nil && run.errorCount == 0 {
				run.IncError()
			}
			s.logJobFinish(ctx, run)
		}
		return err
	})
	if err == nil && !acquired {
		s.metrics.IncJobSkipped(name)
		log.Debug("job skipped, lock held elsewhere")
		return nil
	}
	if err == nil {
		return nil
	}

	// a timeout is soft: the next tick picks up what is left
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobExpireCampaigns, s.ExpireCampaignsJob},
		{JobLapseConfirmations, s.LapseConfirmationsJob},
	}
	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now()

	for {
		if runLag := s.clock.Now().Sub(nextRun); runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ExpireCampaignsJob moves overdue open campaigns to expired.
func (s *Scheduler) ExpireCampaignsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpireCampaigns)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	expired, err := s.campaignSvc.SweepExpired(ctx)
	// campaigns expired before an error are committed and still reported
	if len(expired) > 0 {
		run.AddProcessed(len(expired))
		s.metrics.AddBatchProcessed(JobExpireCampaigns, "campaigns", len(expired))
		s.notifier.CampaignsExpired(ctx, expired)
	}
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.sweep.failed", JobExpireCampaigns, err)
		return err
	}
	return nil
}

// LapseConfirmationsJob reopens campaigns whose selected producer never
// confirmed the chat. Selections that never got a channel are given one
// first, so their confirmation window starts and they can lapse later.
func (s *Scheduler) LapseConfirmationsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobLapseConfirmations)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	opened, err := s.chatSvc.OpenMissing(ctx)
	if len(opened) > 0 {
		run.AddProcessed(len(opened))
		s.metrics.AddBatchProcessed(JobLapseConfirmations, "channels", len(opened))
	}
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.open_missing.failed", JobLapseConfirmations, err)
		return err
	}

	lapsed, err := s.chatSvc.LapseExpired(ctx)
	if len(lapsed) > 0 {
		run.AddProcessed(len(lapsed))
		s.metrics.AddBatchProcessed(JobLapseConfirmations, "selections", len(lapsed))
		s.notifier.SelectionsLapsed(ctx, lapsed)
	}
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.lapse.failed", JobLapseConfirmations, err)
		return err
	}
	return nil
}
