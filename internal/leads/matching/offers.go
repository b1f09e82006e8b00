package matching

import (
	"fmt"
	"strings"

	"conectapro/internal/leads/domain"
)

// BuildOffers numbers providers from 1 in the given order.
func BuildOffers(leadID int64, providers []domain.Provider) []domain.Offer {
	offers := make([]domain.Offer, 0, len(providers))
	for i, p := range providers {
		offers = append(offers, domain.Offer{LeadID: leadID, ProviderID: p.ID, Rank: i + 1})
	}
	return offers
}

// OffersMessage renders the numbered list of providers shown to the customer.
func OffersMessage(comuna string, providers []domain.Provider) string {
	lines := make([]string, 0, len(providers)+2)
	lines = append(lines, fmt.Sprintf("Tengo %d profesionales que pueden ayudarte en %s:", len(providers), comuna))
	for i, p := range providers {
		rating := "⭐ sin evaluaciones"
		if p.RatingCount > 0 {
			rating = fmt.Sprintf("⭐ %.1f (%d evals)", p.RatingAvg, p.RatingCount)
		}
		lines = append(lines, fmt.Sprintf("%d) %s — %s", i+1, p.DisplayName(), rating))
	}
	lines = append(lines, "Responde con el número del profesional que prefieras.")
	return strings.Join(lines, "\n")
}
