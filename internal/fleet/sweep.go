package fleet

import (
	"context"
	"log"
	"time"

	"github.com/Gerzer/Shuttle-Tracker-Server/internal/model"
)

// reportRetention is how long any report stays in a history before the sweep
// drops it regardless of source. Well past every resolution horizon.
const reportRetention = 5 * time.Minute

// Sweep runs one eviction and accrual pass over every vehicle: it purges
// expired reports, re-resolves each vehicle, and accrues route distance.
// Only one sweep runs at a time; a tick that lands while the previous pass
// is still working is skipped rather than queued. Cancellation stops the
// pass between vehicles.
func (e *Engine) Sweep(ctx context.Context) {
	if !e.sweepMu.TryLock() {
		log.Printf("Sweep: previous pass still running, skipping tick")
		return
	}
	defer e.sweepMu.Unlock()

	now := e.now()
	actives := e.routes.ActiveAt(now)

	swept, purged, failed := 0, 0, 0
	for _, s := range e.snapshotSlots() {
		if ctx.Err() != nil {
			log.Printf("Sweep: stopping early: %v", ctx.Err())
			break
		}

		s.mu.Lock()
		next := s.v.Clone()
		dropped := purgeReports(next, now)
		advance(next, now, actives, e.horizons, e.routeRecency)
		next.UpdatedAt = now

		if err := e.store.PutVehicle(ctx, next); err != nil {
			// Keep the old record; the next tick retries this vehicle.
			log.Printf("Sweep: failed to persist vehicle %d: %v", next.ID, err)
			failed++
		} else {
			s.v = next
			purged += dropped
			swept++
		}
		s.mu.Unlock()
	}

	if purged > 0 || failed > 0 {
		log.Printf("Sweep: swept %d vehicles, purged %d reports, %d persist failures", swept, purged, failed)
	}
}

// purgeReports drops rider reports past their TTL and anything older than
// the retention floor. Returns how many reports were dropped.
func purgeReports(v *model.Vehicle, now time.Time) int {
	kept := v.Reports[:0]
	for _, r := range v.Reports {
		age := now.Sub(r.Timestamp)
		if r.Source == model.SourceUser && age > model.UserReportTTL {
			continue
		}
		if age > reportRetention {
			continue
		}
		kept = append(kept, r)
	}
	dropped := len(v.Reports) - len(kept)
	v.Reports = kept
	return dropped
}
