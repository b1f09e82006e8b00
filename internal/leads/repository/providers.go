package repository

import (
	"context"
	"fmt"

	"conectapro/internal/leads/domain"
	"conectapro/platform/apperr"

	"github.com/jackc/pgx/v5"
)

// Coverage rows replace the primary comuna when a provider has any.
const providerColumns = `p.id, p.service, p.comuna, p.name, p.whatsapp_e164, p.active,
	p.rating_avg, p.rating_count, p.blocked_until,
	COALESCE((SELECT array_agg(pc.comuna ORDER BY pc.comuna) FROM provider_coverage pc WHERE pc.provider_id = p.id), '{}')`

func scanProvider(row pgx.Row) (domain.Provider, error) {
	var p domain.Provider
	err := row.Scan(&p.ID, &p.Service, &p.Comuna, &p.Name, &p.WhatsApp, &p.Active,
		&p.RatingAvg, &p.RatingCount, &p.BlockedUntil, &p.Coverage)
	return p, err
}

func collectProviders(rows pgx.Rows) ([]domain.Provider, error) {
	defer rows.Close()
	items := make([]domain.Provider, 0)
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) ListActiveServices(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT service
		FROM providers
		WHERE active AND btrim(service) <> ''
		ORDER BY service
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *Repository) ListLocalities(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT comuna FROM providers WHERE btrim(comuna) <> ''
		UNION
		SELECT comuna FROM provider_coverage
		ORDER BY 1
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *Repository) ListProvidersForServices(ctx context.Context, services []string) ([]domain.Provider, error) {
	if len(services) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers p
		WHERE p.active AND p.service = ANY($1)
		ORDER BY p.id
	`, services)
	if err != nil {
		return nil, err
	}
	return collectProviders(rows)
}

// ListCandidates returns active providers of service whose comuna, or coverage when present,
// folds to localityKey. Blocked providers are included and filtered by the caller.
func (r *Repository) ListCandidates(ctx context.Context, service, localityKey string, limit int) ([]domain.Provider, error) {
	query := `
		SELECT ` + providerColumns + `
		FROM providers p
		WHERE p.active
		  AND lower(btrim(p.service)) = lower(btrim($1))
		  AND (
		    EXISTS (SELECT 1 FROM provider_coverage pc
		            WHERE pc.provider_id = p.id AND lower(unaccent(btrim(pc.comuna))) = $2)
		    OR (NOT EXISTS (SELECT 1 FROM provider_coverage pc WHERE pc.provider_id = p.id)
		        AND lower(unaccent(btrim(p.comuna))) = $2)
		  )
		ORDER BY p.rating_avg DESC, p.rating_count DESC, p.id ASC`
	args := []any{service, localityKey}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectProviders(rows)
}

func (r *Repository) GetProvider(ctx context.Context, id int64) (domain.Provider, error) {
	p, err := scanProvider(r.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers p WHERE p.id = $1`, id))
	if err != nil {
		return domain.Provider{}, notFound(err, "provider")
	}
	return p, nil
}

// ProviderByAddress matches waID against provider numbers by digits only, so stored
// "+56 9 ..." and inbound "569..." agree.
func (r *Repository) ProviderByAddress(ctx context.Context, waID string) (domain.Provider, bool, error) {
	target := digits(waID)
	if target == "" {
		return domain.Provider{}, false, nil
	}
	p, err := scanProvider(r.pool.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers p
		WHERE regexp_replace(p.whatsapp_e164, '\D', '', 'g') = $1
		ORDER BY p.id
		LIMIT 1
	`, target))
	if err != nil {
		if apperr.Is(notFound(err, "provider"), apperr.KindNotFound) {
			return domain.Provider{}, false, nil
		}
		return domain.Provider{}, false, err
	}
	return p, true, nil
}

func (r *Repository) GetProviderState(ctx context.Context, providerID int64) (domain.ProviderState, error) {
	st := domain.ProviderState{ProviderID: providerID}
	var question *string
	err := r.pool.QueryRow(ctx, `
		SELECT pending_lead_id, pending_question
		FROM provider_state
		WHERE provider_id = $1
	`, providerID).Scan(&st.PendingLeadID, &question)
	if err != nil {
		if apperr.Is(notFound(err, "provider state"), apperr.KindNotFound) {
			return st, nil
		}
		return st, err
	}
	st.Question = domain.PendingQuestion(derefString(question))
	return st, nil
}

func (r *Repository) RecordProviderAnswer(ctx context.Context, leadID int64, q domain.PendingQuestion, yes bool) error {
	var column string
	switch q {
	case domain.QuestionContact:
		column = "provider_contact_confirmed"
	case domain.QuestionService:
		column = "provider_service_confirmed"
	default:
		return apperr.Validation("no pending question")
	}

	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`UPDATE leads SET %s = $2, last_activity_at = now() WHERE id = $1`, column), leadID, yes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lead not found")
	}
	return nil
}
