// Package worker regenerates chart reports in response to expense
// change events consumed from AMQP.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pocketledger/internal/amqp"
	"pocketledger/internal/charts"
	"pocketledger/internal/core"
	"pocketledger/internal/log"
)

const (
	CategoryReportFile = "expenses-by-category.png"
	MonthlyReportFile  = "monthly-spending.png"
)

// StatsProvider yields the aggregate statistics the reports are built
// from. ExpenseService is the production implementation.
type StatsProvider interface {
	GetStats(ctx context.Context) (core.Stats, error)
}

// ReportWorker listens for expense change events and rewrites the PNG
// reports under outputDir. Bursts of events within the debounce window
// collapse into a single regeneration.
type ReportWorker struct {
	stats     StatsProvider
	renderer  *charts.Renderer
	outputDir string
	debounce  time.Duration
	logger    *log.Logger

	kick chan struct{}
}

func NewReportWorker(stats StatsProvider, renderer *charts.Renderer, outputDir string, debounce time.Duration, logger *log.Logger) *ReportWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	}
	return &ReportWorker{
		stats:     stats,
		renderer:  renderer,
		outputDir: outputDir,
		debounce:  debounce,
		logger:    logger,
		kick:      make(chan struct{}, 1),
	}
}

// HandleEvent is the AMQP consumer callback. It only schedules work, so
// the delivery is acked immediately and a slow render never requeues
// events.
func (w *ReportWorker) HandleEvent(event *amqp.ExpenseEvent) error {
	w.logger.Info("Report refresh requested",
		log.FieldOperation, string(event.Op),
		log.FieldExpenseID, event.ExpenseID)

	select {
	case w.kick <- struct{}{}:
	default:
	}
	return nil
}

// Run blocks until ctx is done, regenerating reports after each burst of
// events settles.
func (w *ReportWorker) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.kick:
			// Restart the window; more events extend it.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			if err := w.Generate(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Failed to regenerate reports", log.FieldError, err)
			}
		}
	}
}

// Generate renders both reports and writes them atomically. Charts with
// no data are skipped, not deleted: stale reports beat broken images.
func (w *ReportWorker) Generate(ctx context.Context) error {
	stats, err := w.stats.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	category, err := w.renderer.CategoryBreakdown(stats)
	if err != nil {
		return err
	}
	if category != nil {
		if err := w.writeReport(CategoryReportFile, category); err != nil {
			return err
		}
	}

	monthly, err := w.renderer.MonthlySpending(stats)
	if err != nil {
		return err
	}
	if monthly != nil {
		if err := w.writeReport(MonthlyReportFile, monthly); err != nil {
			return err
		}
	}

	w.logger.InfoContext(ctx, "Reports regenerated",
		log.FieldPath, w.outputDir,
		log.FieldAmountCents, stats.Total.Cents)
	return nil
}

func (w *ReportWorker) writeReport(name string, data []byte) error {
	target := filepath.Join(w.outputDir, name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", name, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace report %s: %w", name, err)
	}
	return nil
}
