package intent

import (
	"sort"
	"strings"

	"conectapro/platform/textnorm"
)

const (
	aliasServiceScore   = 1.0
	keywordServiceScore = 0.7
)

// ServiceIndex maps catalog intents to provider service labels found in live data.
// It is rebuilt whenever the set of active services is read and is never mutated afterwards.
type ServiceIndex struct {
	intentToServices map[string][]string
	serviceToIntent  map[string]string
}

// BuildServiceIndex assigns every service to its best-matching intent.
// An alias containing or contained in the service scores 1.0, a keyword contained
// in the service scores 0.7, anything below 0.7 leaves the service unmapped.
// Ties keep the earlier intent in catalog order.
func BuildServiceIndex(services []string, c *Catalog) *ServiceIndex {
	idx := &ServiceIndex{
		intentToServices: make(map[string][]string),
		serviceToIntent:  make(map[string]string),
	}

	for _, svc := range services {
		s := normService(svc)
		if s == "" {
			continue
		}
		if _, done := idx.serviceToIntent[svc]; done {
			continue
		}

		bestID, bestScore := "", 0.0
		for _, d := range c.intents {
			score := serviceScore(s, d)
			if score >= keywordServiceScore && score > bestScore {
				bestID, bestScore = d.ID, score
			}
		}
		if bestID == "" {
			continue
		}
		idx.serviceToIntent[svc] = bestID
		idx.intentToServices[bestID] = append(idx.intentToServices[bestID], svc)
	}

	for id, list := range idx.intentToServices {
		sort.SliceStable(list, func(a, b int) bool { return normService(list[a]) < normService(list[b]) })
		idx.intentToServices[id] = list
	}
	return idx
}

func serviceScore(s string, d Definition) float64 {
	for _, alias := range d.Aliases {
		a := normService(alias)
		if a != "" && (strings.Contains(s, a) || strings.Contains(a, s)) {
			return aliasServiceScore
		}
	}
	for _, kw := range d.Keywords {
		k := normService(kw)
		if k != "" && strings.Contains(s, k) {
			return keywordServiceScore
		}
	}
	return 0
}

// ServicesFor returns the services mapped to intentID in deterministic order.
func (i *ServiceIndex) ServicesFor(intentID string) []string {
	return append([]string(nil), i.intentToServices[intentID]...)
}

// IntentFor returns the intent a service was mapped to.
func (i *ServiceIndex) IntentFor(service string) (string, bool) {
	id, ok := i.serviceToIntent[service]
	return id, ok
}

func normService(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return textnorm.Fold(s)
}
