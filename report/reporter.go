package report

import (
	"context"
	"errors"
	"log/slog"
)

// Reporter receives every round report when the round ends.
type Reporter interface {
	RoundCompleted(ctx context.Context, r *RoundReport) error
}

// StoreReporter saves reports to a Store.
type StoreReporter struct {
	Store Store
}

func (s StoreReporter) RoundCompleted(ctx context.Context, r *RoundReport) error {
	return s.Store.SaveRound(ctx, r)
}

// LogReporter logs a summary line per round.
type LogReporter struct {
	Logger *slog.Logger
}

func (l LogReporter) RoundCompleted(_ context.Context, r *RoundReport) error {
	sum := r.GroupSum()
	l.Logger.Info("round completed",
		"session", r.SessionID,
		"round", r.Round,
		"type", r.Type,
		"contributed", r.Contributed,
		"members", r.Members,
		"completeness", r.Completeness.String(),
		"gaps", len(r.Gaps),
		"group_sum", sum.Sum,
		"delivery_ratio", r.DeliveryRatio,
	)
	return nil
}

// Reporters fans a report out to several reporters.
type Reporters []Reporter

func (rs Reporters) RoundCompleted(ctx context.Context, r *RoundReport) error {
	var errs []error
	for _, reporter := range rs {
		if err := reporter.RoundCompleted(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Collector keeps reports in memory in arrival order.
type Collector struct {
	Reports []*RoundReport
}

func (c *Collector) RoundCompleted(_ context.Context, r *RoundReport) error {
	c.Reports = append(c.Reports, r)
	return nil
}
