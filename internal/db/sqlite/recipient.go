package sqlite

import (
	"context"
	"time"
)

// RecipientStore tracks every chat that has talked to the bot. The broadcast
// fan-out sends new-course announcements to all of them.
type RecipientStore struct {
	store *Store
}

// NewRecipientStore creates a new recipient store.
func NewRecipientStore(store *Store) *RecipientStore {
	return &RecipientStore{store: store}
}

// Add registers a chat id (idempotent).
func (r *RecipientStore) Add(ctx context.Context, chatID int64) error {
	const query = `
		INSERT OR IGNORE INTO recipients (chat_id, first_seen, first_seen_epoch)
		VALUES (?, ?, ?)
	`

	now := time.Now()
	_, err := r.store.ExecContext(ctx, query, chatID, now.Format(time.RFC3339), now.UnixMilli())
	return err
}

// All returns every known chat id in registration order.
func (r *RecipientStore) All(ctx context.Context) ([]int64, error) {
	const query = `SELECT chat_id FROM recipients ORDER BY first_seen_epoch ASC, chat_id ASC`

	rows, err := r.store.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of known chats.
func (r *RecipientStore) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM recipients`

	var count int
	err := r.store.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}
