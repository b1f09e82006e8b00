package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"conectapro/internal/leads/domain"
	"conectapro/platform/apperr"

	"github.com/jackc/pgx/v5"
)

const leadColumns = `id, customer_wa_id, status, provider_id, requested_intent, service, comuna,
	customer_name, problem_type, urgency, connected_at, followup_stage, followup_sent_at,
	user_contact_confirmed, provider_contact_confirmed, user_service_confirmed, provider_service_confirmed,
	rating_stars, rating_comment, last_activity_at, created_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var (
		l                              domain.Lead
		status                         string
		intentID, service              *string
		comuna, name, problem, urgency *string
		stage, comment                 *string
	)
	err := row.Scan(&l.ID, &l.CustomerID, &status, &l.ProviderID, &intentID, &service, &comuna,
		&name, &problem, &urgency, &l.ConnectedAt, &stage, &l.FollowupSentAt,
		&l.UserContactConfirmed, &l.ProviderContactConfirmed, &l.UserServiceConfirmed, &l.ProviderServiceConfirmed,
		&l.RatingStars, &comment, &l.LastActivityAt, &l.CreatedAt)
	if err != nil {
		return domain.Lead{}, err
	}
	l.Status = domain.Status(status)
	l.Request = domain.ServiceRequestFromColumns(intentID, service)
	l.Comuna = derefString(comuna)
	l.CustomerName = derefString(name)
	l.ProblemType = derefString(problem)
	l.Urgency = derefString(urgency)
	l.FollowupStage = domain.FollowupStage(derefString(stage))
	l.RatingComment = derefString(comment)
	return l, nil
}

func (r *Repository) LoadConversation(ctx context.Context, customerID string) (domain.Conversation, bool, error) {
	var conv domain.Conversation
	var step string
	var scratch []byte
	err := r.pool.QueryRow(ctx, `
		SELECT customer_wa_id, step, lead_id, temp_data, updated_at
		FROM conversation_state
		WHERE customer_wa_id = $1
	`, customerID).Scan(&conv.State.CustomerID, &step, &conv.State.LeadID, &scratch, &conv.State.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, err
	}
	conv.State.Step = domain.Step(step)
	if len(scratch) > 0 {
		if err := json.Unmarshal(scratch, &conv.State.Scratch); err != nil {
			return domain.Conversation{}, false, fmt.Errorf("decode conversation scratch: %w", err)
		}
	}

	lead, err := scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE customer_wa_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, customerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, err
	}
	conv.Lead = lead

	if conv.Offers, err = r.listOffers(ctx, r.pool, lead.ID); err != nil {
		return domain.Conversation{}, false, err
	}
	if conv.Customer, err = r.getCustomer(ctx, r.pool, customerID); err != nil {
		return domain.Conversation{}, false, err
	}
	return conv, true, nil
}

// OpenLead creates a fresh OPEN lead and points the conversation at it from START.
func (r *Repository) OpenLead(ctx context.Context, customerID string) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		lead, err := scanLead(tx.QueryRow(ctx, `
			INSERT INTO leads (customer_wa_id, status)
			VALUES ($1, $2)
			RETURNING `+leadColumns, customerID, string(domain.StatusOpen)))
		if err != nil {
			return err
		}
		conv.Lead = lead

		conv.State = domain.ConversationState{CustomerID: customerID, Step: domain.StepStart, LeadID: &lead.ID}
		if err := tx.QueryRow(ctx, `
			INSERT INTO conversation_state (customer_wa_id, step, lead_id, temp_data, updated_at)
			VALUES ($1, $2, $3, '{}'::jsonb, now())
			ON CONFLICT (customer_wa_id) DO UPDATE
			SET step = EXCLUDED.step, lead_id = EXCLUDED.lead_id, temp_data = EXCLUDED.temp_data, updated_at = now()
			RETURNING updated_at
		`, customerID, string(domain.StepStart), lead.ID).Scan(&conv.State.UpdatedAt); err != nil {
			return err
		}

		conv.Customer, err = r.getCustomer(ctx, tx, customerID)
		return err
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// Commit applies a turn's changeset in one transaction. A lead whose status moved away
// from ExpectStatus is rejected with a conflict and nothing is written.
func (r *Repository) Commit(ctx context.Context, cs domain.Changeset) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := r.updateLead(ctx, tx, cs); err != nil {
			return err
		}

		scratch, err := json.Marshal(cs.State.Scratch)
		if err != nil {
			return fmt.Errorf("encode conversation scratch: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversation_state (customer_wa_id, step, lead_id, temp_data, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (customer_wa_id) DO UPDATE
			SET step = EXCLUDED.step, lead_id = EXCLUDED.lead_id, temp_data = EXCLUDED.temp_data, updated_at = EXCLUDED.updated_at
		`, cs.State.CustomerID, string(cs.State.Step), cs.State.LeadID, scratch, cs.State.UpdatedAt); err != nil {
			return err
		}

		if cs.ReplaceOffers {
			if err := replaceOffers(ctx, tx, cs.Lead.ID, cs.Offers); err != nil {
				return err
			}
		}

		if cs.Review != nil {
			if err := insertReview(ctx, tx, *cs.Review); err != nil {
				return err
			}
		}

		if cs.EnsureCustomer {
			if _, err := tx.Exec(ctx, `
				INSERT INTO customers (wa_id) VALUES ($1)
				ON CONFLICT (wa_id) DO NOTHING
			`, cs.Lead.CustomerID); err != nil {
				return err
			}
		}
		if cs.ReleaseCustomer {
			if err := releaseCustomer(ctx, tx, cs.Lead.CustomerID, cs.Lead.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) updateLead(ctx context.Context, tx pgx.Tx, cs domain.Changeset) error {
	l := cs.Lead
	intentID, service := l.Request.Columns()
	var stage *string
	if l.FollowupStage != domain.FollowupNone {
		s := string(l.FollowupStage)
		stage = &s
	}

	// Provider-side confirmations belong to RecordProviderAnswer and are never written here.
	tag, err := tx.Exec(ctx, `
		UPDATE leads SET
			status = $2, provider_id = $3, requested_intent = $4, service = $5, comuna = $6,
			customer_name = $7, problem_type = $8, urgency = $9, connected_at = $10,
			followup_stage = $11, followup_sent_at = $12,
			user_contact_confirmed = $13, user_service_confirmed = $14,
			rating_stars = $15, rating_comment = $16, last_activity_at = COALESCE($17, now())
		WHERE id = $1 AND ($18 = '' OR status = $18)
	`, l.ID, string(l.Status), l.ProviderID, intentID, service, nullString(l.Comuna),
		nullString(l.CustomerName), nullString(l.ProblemType), nullString(l.Urgency), l.ConnectedAt,
		stage, l.FollowupSentAt,
		l.UserContactConfirmed, l.UserServiceConfirmed,
		l.RatingStars, nullString(l.RatingComment), nullTime(l.LastActivityAt),
		string(cs.ExpectStatus))
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, l.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("lead not found")
	}
	return apperr.Conflict("lead status changed concurrently")
}

func replaceOffers(ctx context.Context, tx pgx.Tx, leadID int64, offers []domain.Offer) error {
	if _, err := tx.Exec(ctx, `DELETE FROM lead_offers WHERE lead_id = $1`, leadID); err != nil {
		return err
	}
	if len(offers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range offers {
		batch.Queue(`INSERT INTO lead_offers (lead_id, provider_id, rank) VALUES ($1, $2, $3)`, leadID, o.ProviderID, o.Rank)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// insertReview stores the review and folds it into the provider's running mean.
func insertReview(ctx context.Context, tx pgx.Tx, rv domain.Review) error {
	if !domain.ValidStars(rv.Stars) {
		return apperr.Validation("stars must be between 1 and 5")
	}
	tag, err := tx.Exec(ctx, `
		UPDATE providers
		SET rating_avg = (rating_avg * rating_count + $2) / (rating_count + 1),
		    rating_count = rating_count + 1
		WHERE id = $1
	`, rv.ProviderID, float64(rv.Stars))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("provider not found")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reviews (lead_id, provider_id, customer_wa_id, stars, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`, rv.LeadID, rv.ProviderID, rv.CustomerID, rv.Stars, nullString(rv.Comment), nullTime(rv.CreatedAt))
	return err
}

func releaseCustomer(ctx context.Context, tx pgx.Tx, waID string, leadID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE customers
		SET pending_lead_id = NULL, blocked_until = NULL, updated_at = now()
		WHERE wa_id = $1 AND pending_lead_id = $2
	`, waID, leadID)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) listOffers(ctx context.Context, q querier, leadID int64) ([]domain.Offer, error) {
	rows, err := q.Query(ctx, `
		SELECT lead_id, provider_id, rank
		FROM lead_offers
		WHERE lead_id = $1
		ORDER BY rank ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Offer, 0)
	for rows.Next() {
		var o domain.Offer
		if err := rows.Scan(&o.LeadID, &o.ProviderID, &o.Rank); err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) getCustomer(ctx context.Context, q querier, waID string) (*domain.Customer, error) {
	var c domain.Customer
	err := q.QueryRow(ctx, `
		SELECT id, wa_id, blocked_until, pending_lead_id, created_at
		FROM customers
		WHERE wa_id = $1
	`, waID).Scan(&c.ID, &c.WAID, &c.BlockedUntil, &c.PendingLeadID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
