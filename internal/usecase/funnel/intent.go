package funnel

import "strings"

// intentCategories is the fixed topical taxonomy used by the semantic
// filter stage. Detection is keyword-in-category matching on the query;
// filtering keeps candidates whose excerpt touches the detected category's
// vocabulary.
var intentCategories = map[string][]string{
	"energie": {
		"energie", "strom", "solar", "photovoltaik", "windkraft", "wärme",
		"wärmepumpe", "heizung", "energiewende", "erneuerbare",
		"energy", "power", "electricity", "renewable",
	},
	"klima": {
		"klima", "klimaschutz", "klimawandel", "co2", "emission", "emissionen",
		"treibhausgas", "umwelt", "nachhaltigkeit",
		"climate", "sustainability", "greenhouse",
	},
	"verkehr": {
		"verkehr", "mobilität", "auto", "fahrrad", "bahn", "bus",
		"elektroauto", "nahverkehr", "transport",
	},
	"bauen": {
		"bauen", "gebäude", "sanierung", "dämmung", "isolierung",
		"neubau", "wohnung", "haus",
	},
	"verwaltung": {
		"antrag", "förderung", "förderprogramm", "gesetz", "verordnung",
		"richtlinie", "behörde", "zuschuss",
	},
}

// detectIntent classifies the query against the category taxonomy. Returns
// the category with the most query-term matches, or false when the query
// touches no category at all.
func detectIntent(query string) (string, bool) {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return "", false
	}

	bestCategory := ""
	bestMatches := 0
	for category, vocab := range intentCategories {
		matches := 0
		for _, w := range words {
			w = strings.Trim(w, ".,;:!?\"'()")
			for _, term := range vocab {
				if w == term {
					matches++
					break
				}
			}
		}
		if matches > bestMatches ||
			(matches == bestMatches && matches > 0 && category < bestCategory) {
			bestCategory = category
			bestMatches = matches
		}
	}

	return bestCategory, bestMatches > 0
}

// matchesCategory reports whether the text touches the category vocabulary.
func matchesCategory(text, category string) bool {
	vocab, ok := intentCategories[category]
	if !ok {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range vocab {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
