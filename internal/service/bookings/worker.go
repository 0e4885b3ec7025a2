package bookings

import (
	"context"
	"log/slog"
	"time"
)

// RunRefreshWorker re-runs the availability maintenance every interval until ctx is
// done, so a long-lived process keeps its window current across midnight.
func (s *Service) RunRefreshWorker(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report, err := s.RefreshAvailability(ctx)
			if err != nil {
				s.log.Error("availability refresh failed", slog.Any("err", err))
				continue
			}
			if report.Changed() {
				s.log.Debug("availability refreshed", slog.Int("providers_changed", len(report.Changes)))
			}
		}
	}
}
