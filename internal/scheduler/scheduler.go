package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"shiftbook/backend/internal/domain"
)

type SummarySender interface {
	SendDailySummary(ctx context.Context, date string) (domain.DailyRevenueStats, error)
}

// Scheduler runs the daily revenue summary on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	sender   SummarySender
	schedule string
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

func New(schedule string, loc *time.Location, sender SummarySender, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		sender:   sender,
		schedule: schedule,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sendDailySummary); err != nil {
		return fmt.Errorf("schedule daily summary %q: %w", s.schedule, err)
	}
	s.logger.Info("starting scheduler", zap.String("schedule", s.schedule), zap.String("timezone", s.loc.String()))
	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// RunDailySummary sends the summary for the business date before the current one.
func (s *Scheduler) RunDailySummary(ctx context.Context) (domain.DailyRevenueStats, error) {
	date := s.now().In(s.loc).AddDate(0, 0, -1).Format(domain.DateLayout)
	return s.sender.SendDailySummary(ctx, date)
}

func (s *Scheduler) sendDailySummary() {
	s.logger.Info("generating daily summary")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	stats, err := s.RunDailySummary(ctx)
	if err != nil {
		s.logger.Error("failed to send daily summary", zap.Error(err))
		return
	}
	s.logger.Info("daily summary sent",
		zap.String("date", stats.Date),
		zap.Int("records", stats.Totals.Records),
		zap.Int64("total_revenue", stats.Totals.TotalRevenue))
}
