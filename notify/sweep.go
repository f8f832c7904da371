package notify

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Subject is one tenant certificate to check in a sweep.
type Subject struct {
	TenantID string
	NotAfter time.Time
}

// SweepResult is the outcome for one Subject. Event is nil when nothing was
// due.
type SweepResult struct {
	TenantID string
	Event    *Event
}

// Sweep runs MaybeNotify for every subject concurrently. Results are in
// input order. It stops early only when ctx is cancelled.
func (s *Scheduler) Sweep(ctx context.Context, subjects []Subject, now time.Time) ([]SweepResult, error) {
	results := make([]SweepResult, len(subjects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, subj := range subjects {
		i, subj := i, subj
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i].TenantID = subj.TenantID
			if event, ok := s.MaybeNotify(gctx, subj.TenantID, subj.NotAfter, now); ok {
				results[i].Event = event
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Events returns the non-nil events of results.
func Events(results []SweepResult) []*Event {
	var events []*Event
	for _, r := range results {
		if r.Event != nil {
			events = append(events, r.Event)
		}
	}
	return events
}
