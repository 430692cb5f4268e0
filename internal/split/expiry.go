package split

import (
	"context"
	"log"
	"time"
)

// ExpiryWorker periodically fails PENDING divisions whose payment was never
// captured, releasing the balance they reserve.
type ExpiryWorker struct {
	svc      *Service
	interval time.Duration
}

func NewExpiryWorker(svc *Service, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpiryWorker{svc: svc, interval: interval}
}

// Run ticks until ctx is cancelled.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *ExpiryWorker) tick(ctx context.Context) {
	n, err := w.svc.ExpirePending(ctx)
	if err != nil {
		log.Printf("expiry: failed to expire pending divisions: %v", err)
	}
	if n > 0 {
		log.Printf("expiry: expired %d pending divisions", n)
	}
}
