package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/lorrc/testit-reports/internal/core/domain"
	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
	"github.com/lorrc/testit-reports/internal/core/ports"
	"github.com/lorrc/testit-reports/internal/infrastructure/logging"
)

// SchedulerConfig is fixed at start-up.
type SchedulerConfig struct {
	Cron               string
	DefaultToken       string
	ProjectConcurrency int
	RunTimeout         time.Duration
}

// SchedulerService starts collections on a cron schedule and on demand.
type SchedulerService struct {
	cfg       SchedulerConfig
	projects  ports.ProjectRepository
	collector ports.CollectionService
	clock     quartz.Clock
	logger    *slog.Logger

	running atomic.Bool

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.SchedulerService = (*SchedulerService)(nil)

// NewSchedulerService creates a new scheduler. Call Start to arm the cron entry.
func NewSchedulerService(
	cfg SchedulerConfig,
	projects ports.ProjectRepository,
	collector ports.CollectionService,
	clock quartz.Clock,
	logger *slog.Logger,
) *SchedulerService {
	if cfg.ProjectConcurrency < 1 {
		cfg.ProjectConcurrency = 1
	}
	cfg.DefaultToken = strings.TrimSpace(cfg.DefaultToken)
	return &SchedulerService{
		cfg:       cfg,
		projects:  projects,
		collector: collector,
		clock:     clock,
		logger:    logger,
	}
}

// Start registers the nightly run and starts the cron loop. Scheduled runs
// use ctx as their parent; a run still going when the next one is due makes
// the next one a no-op.
func (s *SchedulerService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	logger := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.cfg.Cron, func() { s.RunScheduled(ctx) }); err != nil {
		return fmt.Errorf("invalid collection schedule %q: %w", s.cfg.Cron, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("collection scheduler started", "cron", s.cfg.Cron, "next_run", c.Entries()[0].Next)
	return nil
}

// Stop halts the cron loop and returns a context that is done once any
// running job has returned.
func (s *SchedulerService) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	done := s.cron.Stop()
	s.cron = nil
	return done
}

// RunScheduled collects yesterday for every active project with the default
// credential. Errors end here.
func (s *SchedulerService) RunScheduled(ctx context.Context) {
	r := domain.Yesterday(s.clock.Now())
	s.logger.InfoContext(ctx, "scheduled collection triggered", "range", r.String())

	result, err := s.CollectAll(ctx, r, domain.TriggerScheduled)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled collection did not run", "error", err)
		return
	}
	s.logFleet(ctx, result)
}

// CollectAll collects every active project over r with the default
// credential, a bounded number of projects at a time. One project failing
// never fails the others or the call; failures are gathered in FleetResult.Err.
func (s *SchedulerService) CollectAll(ctx context.Context, r domain.DateRange, trigger domain.CollectionTrigger) (*domain.FleetResult, error) {
	if !s.DefaultCredentialConfigured() {
		s.logger.ErrorContext(ctx, "no default TestIT token configured, collection aborted")
		return nil, apperrors.ErrMissingCredential
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, apperrors.ErrCollectionRunning
	}
	defer s.running.Store(false)

	ctx, cancel := s.withRunTimeout(ctx)
	defer cancel()

	projects, err := s.projects.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active projects: %w", err)
	}

	fleet := &domain.FleetResult{Range: r, Trigger: trigger, Projects: len(projects)}
	results := make([]*domain.CollectionResult, len(projects))
	failures := make([]error, len(projects))

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.ProjectConcurrency)
	for i, project := range projects {
		g.Go(func() error {
			results[i], failures[i] = s.collectOne(ctx, domain.CollectionRequest{
				ProjectID: project.ID,
				Token:     s.cfg.DefaultToken,
				Range:     r,
				Trigger:   trigger,
			})
			return nil
		})
	}
	_ = g.Wait()

	var errs *multierror.Error
	for i, res := range results {
		if failures[i] != nil {
			fleet.Failed++
			errs = multierror.Append(errs, fmt.Errorf("project %d: %w", projects[i].ID, failures[i]))
			continue
		}
		fleet.Results = append(fleet.Results, res)
		switch res.Status {
		case domain.CollectionCompleted:
			fleet.Succeeded++
		case domain.CollectionPartial:
			fleet.Partial++
		case domain.CollectionFailed:
			fleet.Failed++
		case domain.CollectionSkipped:
			fleet.Skipped++
		}
		if err := res.Err(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("project %d: %w", res.ProjectID, err))
		}
	}
	fleet.Err = errs.ErrorOrNil()
	return fleet, nil
}

// CollectProject collects a single project. An empty token falls back to
// the default credential.
func (s *SchedulerService) CollectProject(ctx context.Context, projectID int64, token string, r domain.DateRange) (*domain.CollectionResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		token = s.cfg.DefaultToken
	}
	if token == "" {
		return nil, apperrors.ErrMissingCredential
	}

	ctx, cancel := s.withRunTimeout(ctx)
	defer cancel()

	return s.collectOne(ctx, domain.CollectionRequest{
		ProjectID: projectID,
		Token:     token,
		Range:     r,
		Trigger:   domain.TriggerManual,
	})
}

func (s *SchedulerService) DefaultCredentialConfigured() bool {
	return s.cfg.DefaultToken != ""
}

func (s *SchedulerService) Running() bool {
	return s.running.Load()
}

func (s *SchedulerService) collectOne(ctx context.Context, req domain.CollectionRequest) (result *domain.CollectionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(logging.LoggerFromContext(ctx, s.logger).With("project_id", req.ProjectID), r)
			result, err = nil, fmt.Errorf("collection panicked: %v", r)
		}
	}()
	return s.collector.Collect(ctx, req)
}

func (s *SchedulerService) withRunTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RunTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RunTimeout)
}

func (s *SchedulerService) logFleet(ctx context.Context, fleet *domain.FleetResult) {
	attrs := []any{
		"range", fleet.Range.String(),
		"trigger", fleet.Trigger,
		"projects", fleet.Projects,
		"succeeded", fleet.Succeeded,
		"partial", fleet.Partial,
		"failed", fleet.Failed,
		"skipped", fleet.Skipped,
	}
	if fleet.Err != nil {
		s.logger.WarnContext(ctx, "fleet collection finished with errors", append(attrs, "error", fleet.Err)...)
		return
	}
	s.logger.InfoContext(ctx, "fleet collection finished", attrs...)
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
