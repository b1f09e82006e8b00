package repository

import "context"

func (r *Repository) Exists(ctx context.Context, customerID, messageID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM inbound_messages WHERE customer_wa_id = $1 AND message_id = $2
		)
	`, customerID, messageID).Scan(&exists)
	return exists, err
}

// Insert records the message and reports false when the pair was already stored.
func (r *Repository) Insert(ctx context.Context, customerID, messageID, text string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO inbound_messages (customer_wa_id, message_id, text)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_wa_id, message_id) DO NOTHING
	`, customerID, messageID, nullString(text))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
