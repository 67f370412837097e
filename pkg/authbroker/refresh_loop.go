package authbroker

import (
	"context"
	"time"

	"github.com/localbridge/localbridged/pkg/log"
)

// proactiveWindow is how far ahead of expiry a token is eagerly refreshed
// by the background loop, so a handler's GetToken rarely blocks on a
// network round trip.
const proactiveWindow = 5 * time.Minute

const tickInterval = 60 * time.Second

const maxBackoff = 15 * time.Minute

// RunBackgroundRefresh periodically scans stored accounts and refreshes
// any token nearing expiry, until ctx is canceled. Failures back off
// per-account with an exponential delay capped at maxBackoff; they do not
// stop the loop or affect other accounts.
func (b *Broker) RunBackgroundRefresh(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	backoff := map[string]time.Duration{}
	nextAttempt := map[string]time.Time{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, rec := range b.store.ListTokenRecords("") {
				key := rec.Provider + "/" + rec.Account
				if at, scheduled := nextAttempt[key]; scheduled && now.Before(at) {
					continue
				}
				if now.Add(proactiveWindow).Before(rec.ExpiresAt) {
					delete(backoff, key)
					delete(nextAttempt, key)
					continue
				}

				if _, err := b.refresh(ctx, rec.Provider, rec.Account, proactiveWindow); err != nil {
					delay := nextBackoff(backoff[key])
					backoff[key] = delay
					nextAttempt[key] = now.Add(delay)
					log.Logf("- proactive refresh failed for %s: %v (retry in %s)", key, err, delay)
					continue
				}
				delete(backoff, key)
				delete(nextAttempt, key)
			}
		}
	}
}

func nextBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return 30 * time.Second
	}
	next := prev * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
