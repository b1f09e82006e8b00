package repository

import (
	"context"
	"errors"
	"time"

	"conectapro/internal/leads/domain"

	"github.com/jackc/pgx/v5"
)

func (r *Repository) ListLeadsByStatus(ctx context.Context, status domain.Status) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE status = $1
		ORDER BY id ASC
	`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// ApplyFollowup writes t in one transaction when the lead still has status t.From.
func (r *Repository) ApplyFollowup(ctx context.Context, t domain.FollowupTransition) (bool, error) {
	applied := false
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var stage *string
		if t.Stage != domain.FollowupNone {
			s := string(t.Stage)
			stage = &s
		}

		var customerID string
		err := tx.QueryRow(ctx, `
			UPDATE leads
			SET status = $3,
			    followup_stage = COALESCE($4, followup_stage),
			    followup_sent_at = COALESCE($5, followup_sent_at)
			WHERE id = $1 AND status = $2
			RETURNING customer_wa_id
		`, t.LeadID, string(t.From), string(t.To), stage, t.SentAt).Scan(&customerID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		applied = true

		if _, err := tx.Exec(ctx, `
			UPDATE conversation_state
			SET step = $2, updated_at = now()
			WHERE lead_id = $1
		`, t.LeadID, string(t.To.Step())); err != nil {
			return err
		}

		if t.BlockCustomerUntil != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO customers (wa_id, pending_lead_id, blocked_until)
				VALUES ($1, $2, $3)
				ON CONFLICT (wa_id) DO UPDATE
				SET pending_lead_id = EXCLUDED.pending_lead_id, blocked_until = EXCLUDED.blocked_until, updated_at = now()
			`, customerID, t.LeadID, *t.BlockCustomerUntil); err != nil {
				return err
			}
		}
		if t.ReleaseCustomer {
			if err := releaseCustomer(ctx, tx, customerID, t.LeadID); err != nil {
				return err
			}
		}

		if t.ProviderID != 0 {
			switch {
			case t.BlockProviderUntil != nil:
				if _, err := tx.Exec(ctx, `UPDATE providers SET blocked_until = $2 WHERE id = $1`, t.ProviderID, *t.BlockProviderUntil); err != nil {
					return err
				}
			case t.ReleaseProvider:
				if _, err := tx.Exec(ctx, `UPDATE providers SET blocked_until = NULL WHERE id = $1`, t.ProviderID); err != nil {
					return err
				}
			}
		}

		if t.SetProviderQuestion && t.ProviderID != 0 {
			if err := setProviderQuestion(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// TouchFollowup stamps followup_sent_at for a reminder while the lead still has status.
func (r *Repository) TouchFollowup(ctx context.Context, leadID int64, status domain.Status, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET followup_sent_at = $3
		WHERE id = $1 AND status = $2
	`, leadID, string(status), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// setProviderQuestion points the provider at t.LeadID, or clears the question when it
// still belongs to t.LeadID.
func setProviderQuestion(ctx context.Context, tx pgx.Tx, t domain.FollowupTransition) error {
	if t.ProviderQuestion == domain.QuestionNone {
		_, err := tx.Exec(ctx, `
			UPDATE provider_state
			SET pending_lead_id = NULL, pending_question = NULL, updated_at = now()
			WHERE provider_id = $1 AND pending_lead_id = $2
		`, t.ProviderID, t.LeadID)
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO provider_state (provider_id, pending_lead_id, pending_question, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (provider_id) DO UPDATE
		SET pending_lead_id = EXCLUDED.pending_lead_id, pending_question = EXCLUDED.pending_question, updated_at = now()
	`, t.ProviderID, t.LeadID, string(t.ProviderQuestion))
	return err
}
