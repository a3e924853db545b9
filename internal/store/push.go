package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cmericli/claude-remote/internal/domain"
	"github.com/cmericli/claude-remote/internal/domain/ports"
)

// SavePushSubscription inserts or refreshes a push subscription keyed by
// its endpoint URL.
func (s *Store) SavePushSubscription(ctx context.Context, sub ports.PushSubscription) error {
	if s.isClosed() {
		return domain.ErrStoreClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (endpoint, p256dh, auth, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			p256dh = excluded.p256dh,
			auth = excluded.auth,
			user_agent = excluded.user_agent
	`, sub.Endpoint, sub.P256DH, sub.Auth, sub.UserAgent, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save push subscription: %w", err)
	}
	return nil
}

// DeletePushSubscription removes a subscription. Missing endpoints are not
// an error; deletion is how permanently failing targets get cleaned up.
func (s *Store) DeletePushSubscription(ctx context.Context, endpoint string) error {
	if s.isClosed() {
		return domain.ErrStoreClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM push_subscriptions WHERE endpoint = ?", endpoint); err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}

// PushSubscriptions returns all registered subscriptions.
func (s *Store) PushSubscriptions(ctx context.Context) ([]ports.PushSubscription, error) {
	if s.isClosed() {
		return nil, domain.ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT endpoint, p256dh, auth, user_agent FROM push_subscriptions ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query push subscriptions: %w", err)
	}
	defer rows.Close()

	var out []ports.PushSubscription
	for rows.Next() {
		var sub ports.PushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.P256DH, &sub.Auth, &sub.UserAgent); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
