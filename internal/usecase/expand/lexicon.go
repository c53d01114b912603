package expand

// lexicon maps lowercase corpus terms to semantic neighbors used for variant
// generation. The corpus is German-heavy with English mixed in, so both are
// covered. Tuned by hand against the document base, not learned.
var lexicon = map[string][]string{
	// Climate / environment
	"klimaschutz":    {"klimawandel", "umweltschutz", "co2 reduktion"},
	"klimawandel":    {"klimaschutz", "erderwärmung"},
	"umweltschutz":   {"klimaschutz", "nachhaltigkeit"},
	"nachhaltigkeit": {"umweltschutz", "klimaschutz"},
	"emissionen":     {"co2", "treibhausgase"},
	"climate":        {"climate change", "emissions"},
	"sustainability": {"renewable energy", "climate"},
	"emissions":      {"co2", "greenhouse gases"},

	// Energy
	"energie":      {"strom", "energieversorgung"},
	"energiewende": {"erneuerbare energien", "klimaschutz"},
	"strom":        {"energie", "elektrizität"},
	"solar":        {"photovoltaik", "solaranlage"},
	"windkraft":    {"windenergie", "erneuerbare energien"},
	"wärmepumpe":   {"heizung", "wärmeversorgung"},
	"energy":       {"power", "electricity"},
	"renewable":    {"solar", "wind power"},

	// Mobility
	"verkehr":     {"mobilität", "transport"},
	"mobilität":   {"verkehr", "nahverkehr"},
	"elektroauto": {"e-mobilität", "elektrofahrzeug"},

	// Policy / economy
	"förderung":  {"subvention", "förderprogramm"},
	"gesetz":     {"verordnung", "richtlinie"},
	"wirtschaft": {"industrie", "unternehmen"},
}

// domainVocabulary is the recognized topical vocabulary of the corpus. A
// query touching it gets a slightly more permissive similarity threshold.
var domainVocabulary = map[string]struct{}{
	"klimaschutz":    {},
	"klimawandel":    {},
	"umweltschutz":   {},
	"nachhaltigkeit": {},
	"emissionen":     {},
	"treibhausgase":  {},
	"energie":        {},
	"energiewende":   {},
	"solar":          {},
	"photovoltaik":   {},
	"windkraft":      {},
	"wärmepumpe":     {},
	"verkehr":        {},
	"mobilität":      {},
	"climate":        {},
	"sustainability": {},
	"emissions":      {},
	"energy":         {},
	"renewable":      {},
}
