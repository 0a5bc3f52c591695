package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"agencycrm/internal/platform/repositories"
)

// InviteExpiry marks overdue pending invites as expired. Reads already treat
// them as expired, so this only keeps stored statuses and listings tidy.
type InviteExpiry struct {
	invites  *repositories.InviteRepository
	recorder func(to string)
	now      func() time.Time
}

func NewInviteExpiry(invites *repositories.InviteRepository, recorder func(to string)) *InviteExpiry {
	return &InviteExpiry{invites: invites, recorder: recorder, now: time.Now}
}

// RunOnce sweeps once and returns how many invites expired.
func (w *InviteExpiry) RunOnce(ctx context.Context) (int64, error) {
	n, err := w.invites.ExpireOverdue(ctx, w.now().Unix())
	if err != nil {
		return 0, err
	}
	if w.recorder != nil {
		for i := int64(0); i < n; i++ {
			w.recorder("expired")
		}
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("Expired overdue invites")
	}
	return n, nil
}

// Run sweeps every interval until ctx is cancelled.
func (w *InviteExpiry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("Invite expiry sweep failed")
			}
		}
	}
}
