package goSession

import (
	"context"
	"time"
)

// Sweep runs one gc cycle against the backend through a fresh Handler.
func (m *Manager) Sweep(ctx context.Context) (bool, error) {
	h := m.NewHandler(nil, nil)
	if _, err := h.Open(ctx, m.cfg.Session.SavePath, m.cfg.Session.Name); err != nil {
		return false, err
	}
	ok, err := h.GC(ctx, m.cfg.Session.MaxLifetime)
	if err != nil {
		m.abort(ctx, h)
		return false, err
	}
	if _, err := h.Close(ctx); err != nil {
		return false, err
	}
	return ok, nil
}

// RunSweeper calls Sweep every interval until ctx is done. Failures are logged and the
// loop continues.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.cfg.Session.MaxLifetime
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.logger.Error().Err(err).Msg("session sweep failed")
				continue
			}
			m.logger.Debug().Msg("session sweep completed")
		}
	}
}
