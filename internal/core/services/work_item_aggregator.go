package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lorrc/testit-reports/internal/core/domain"
	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
	"github.com/lorrc/testit-reports/internal/core/ports"
)

// WorkItemAggregator turns the test cases created and modified in a range
// into daily case counters.
type WorkItemAggregator struct {
	client   ports.TestManagementClient
	counters ports.CaseCounterRepository
	resolver ports.UsernameResolver
	logger   *slog.Logger
}

var _ ports.WorkItemAggregator = (*WorkItemAggregator)(nil)

func NewWorkItemAggregator(
	client ports.TestManagementClient,
	counters ports.CaseCounterRepository,
	resolver ports.UsernameResolver,
	logger *slog.Logger,
) ports.WorkItemAggregator {
	return &WorkItemAggregator{
		client:   client,
		counters: counters,
		resolver: resolver,
		logger:   logger,
	}
}

// AggregateWorkItems fetches both sides concurrently and replaces the counter
// of every (user, day) seen on either side. Nothing is written when a fetch
// fails. Individual write failures are logged and skipped.
func (a *WorkItemAggregator) AggregateWorkItems(ctx context.Context, project *domain.Project, token string, r domain.DateRange) (int, error) {
	if !project.HasExternalID() {
		return 0, apperrors.ErrProjectNotCollectable
	}

	from, to := r.Window()
	window := &domain.TimeWindow{From: from, To: to}
	base := domain.WorkItemFilter{
		ProjectIDs: []uuid.UUID{*project.ExternalID},
		Types:      []string{domain.WorkItemTypeTestCases},
	}

	var created, modified []domain.WorkItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		filter := base
		filter.CreatedDate = window
		items, err := a.client.SearchWorkItems(gctx, token, filter)
		if err != nil {
			return fmt.Errorf("search created work items: %w", err)
		}
		created = items
		return nil
	})
	g.Go(func() error {
		filter := base
		filter.ModifiedDate = window
		items, err := a.client.SearchWorkItems(gctx, token, filter)
		if err != nil {
			return fmt.Errorf("search modified work items: %w", err)
		}
		modified = items
		return nil
	})
	if err := g.Wait(); err != nil {
		a.logger.ErrorContext(ctx, "work item fetch failed", "range", r.String(), "error", err)
		return 0, fmt.Errorf("%w: %w", apperrors.ErrUpstreamUnavailable, err)
	}

	counters := domain.BuildCaseCounters(project.ID, created, modified)
	names := make(map[uuid.UUID]string)
	written := 0
	for _, c := range counters {
		name, ok := names[c.UserID]
		if !ok {
			name = a.resolver.ResolveUsername(ctx, token, c.UserID)
			names[c.UserID] = name
		}
		c.Username = name

		if err := a.counters.Replace(ctx, c); err != nil {
			a.logger.ErrorContext(ctx, "failed to write case counter",
				"testit_user_id", c.UserID,
				"date", c.Date.Format(domain.DateLayout),
				"error", err,
			)
			continue
		}
		written++
	}

	a.logger.InfoContext(ctx, "work items aggregated",
		"range", r.String(),
		"created_items", len(created),
		"modified_items", len(modified),
		"counters_written", written,
		"counters_failed", len(counters)-written,
	)
	return written, nil
}
