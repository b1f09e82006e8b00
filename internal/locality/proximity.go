package locality

import "sort"

// proximityTable lists, per reference comuna, nearby comunas from closest to farthest.
var proximityTable = map[string][]string{
	"concepcion": {
		"talcahuano", "san pedro de la paz", "chiguayante", "hualpen", "coronel", "penco", "tome",
		"lota", "florida", "hualqui", "santa juana", "nacimiento", "los angeles", "cabrero", "yumbel",
	},
	"talcahuano": {
		"concepcion", "san pedro de la paz", "hualpen", "coronel", "penco", "tome", "lota",
		"chiguayante", "florida", "hualqui", "santa juana", "nacimiento", "los angeles", "cabrero", "yumbel",
	},
	"san pedro de la paz": {
		"concepcion", "talcahuano", "chiguayante", "hualpen", "coronel", "penco", "tome", "lota",
		"florida", "hualqui", "santa juana", "nacimiento", "los angeles", "cabrero", "yumbel",
	},
	"chiguayante": {
		"concepcion", "san pedro de la paz", "talcahuano", "hualqui", "florida", "santa juana",
		"hualpen", "coronel", "penco", "tome", "lota", "nacimiento", "los angeles", "cabrero", "yumbel",
	},
	"hualpen": {
		"talcahuano", "concepcion", "san pedro de la paz", "coronel", "penco", "tome", "lota",
		"chiguayante", "florida", "hualqui", "santa juana", "nacimiento", "los angeles", "cabrero", "yumbel",
	},
	"coronel": {
		"talcahuano", "hualpen", "lota", "penco", "tome", "concepcion", "san pedro de la paz",
		"chiguayante", "florida", "hualqui", "santa juana", "nacimiento", "los angeles", "cabrero", "yumbel",
	},
	"penco": {
		"talcahuano", "hualpen", "coronel", "tome", "lota", "concepcion", "san pedro de la paz",
		"chiguayante", "florida", "hualqui", "santa juana", "nacimiento", "los angeles", "cabrero", "yumbel",
	},
	"los angeles": {
		"nacimiento", "cabrero", "yumbel", "santa barbara", "quilaco", "negrete", "concepcion",
		"talcahuano", "san pedro de la paz", "chiguayante", "hualpen", "coronel", "penco", "tome",
	},
}

func buildProximity() map[string][]string {
	out := make(map[string][]string, len(proximityTable))
	for ref, near := range proximityTable {
		out[ref] = append([]string(nil), near...)
	}
	return out
}

// Nearby returns the proximity list for a reference key, closest first.
func (n *Normalizer) Nearby(reference string) []string {
	near := n.proximity[n.Key(reference)]
	return append([]string(nil), near...)
}

// OrderByProximity orders candidate keys for display. When reference has a proximity list,
// candidates on that list come first in list order and the rest follow alphabetically.
// Without a usable reference the whole set is alphabetical. The reference itself is omitted.
func (n *Normalizer) OrderByProximity(reference string, candidates []string) []string {
	ref := ""
	if reference != "" {
		ref = n.Key(reference)
	}

	remaining := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c == "" || c == ref {
			continue
		}
		remaining[c] = struct{}{}
	}

	out := make([]string, 0, len(remaining))
	for _, near := range n.proximity[ref] {
		if _, ok := remaining[near]; ok {
			out = append(out, near)
			delete(remaining, near)
		}
	}

	rest := make([]string, 0, len(remaining))
	for c := range remaining {
		rest = append(rest, c)
	}
	sort.Strings(rest)
	return append(out, rest...)
}
