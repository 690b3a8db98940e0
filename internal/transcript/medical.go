package transcript

// DefaultRules returns the built-in clinical correction rules and terms.
//
// The rules cover common recogniser splits and sound-alike spellings of
// everyday clinical vocabulary. Each call returns a fresh copy that callers
// may extend with [RuleSet.Merge].
func DefaultRules() RuleSet {
	rules := make([]CorrectionRule, len(medicalRules))
	copy(rules, medicalRules)
	terms := make([]string, len(medicalTerms))
	copy(terms, medicalTerms)
	return RuleSet{Rules: rules, Terms: terms}
}

var medicalRules = []CorrectionRule{
	{Pattern: "hi pertension", Replacement: "hypertension"},
	{Pattern: "high pertension", Replacement: "hypertension"},
	{Pattern: "hyper tension", Replacement: "hypertension"},
	{Pattern: "hypo tension", Replacement: "hypotension"},
	{Pattern: "azma", Replacement: "asthma"},
	{Pattern: "asma", Replacement: "asthma"},
	{Pattern: "new monia", Replacement: "pneumonia"},
	{Pattern: `\bn(u|oo)monia\b`, Replacement: "pneumonia", Regex: true},
	{Pattern: "die abetes", Replacement: "diabetes"},
	{Pattern: `\bdiabet(us|is|ees)\b`, Replacement: "diabetes", Regex: true},
	{Pattern: "tacky cardia", Replacement: "tachycardia"},
	{Pattern: "brady cardia", Replacement: "bradycardia"},
	{Pattern: "ibu profen", Replacement: "ibuprofen"},
	{Pattern: "eye buprofen", Replacement: "ibuprofen"},
	{Pattern: "a moxicillin", Replacement: "amoxicillin"},
	{Pattern: "amoxicilin", Replacement: "amoxicillin"},
	{Pattern: "met forman", Replacement: "metformin"},
	{Pattern: "metforman", Replacement: "metformin"},
	{Pattern: "asprin", Replacement: "aspirin"},
	{Pattern: "new rologist", Replacement: "neurologist"},
	{Pattern: "cardio logist", Replacement: "cardiologist"},
	{Pattern: "bronc itis", Replacement: "bronchitis"},
	{Pattern: "bronkitis", Replacement: "bronchitis"},
	{Pattern: "arthritus", Replacement: "arthritis"},
	{Pattern: "migrane", Replacement: "migraine"},
	{Pattern: `\bcolest(e|o)r(a|o)l\b`, Replacement: "cholesterol", Regex: true},
	{Pattern: "insoolin", Replacement: "insulin"},
	{Pattern: "anti biotic", Replacement: "antibiotic"},
	{Pattern: "hemaglobin", Replacement: "hemoglobin"},
	{Pattern: "electro cardiogram", Replacement: "electrocardiogram"},
	{Pattern: `\bsee ?oh ?pee ?dee\b`, Replacement: "copd", Regex: true},
}

var medicalTerms = []string{
	"hypertension",
	"hypotension",
	"asthma",
	"pneumonia",
	"diabetes",
	"tachycardia",
	"bradycardia",
	"ibuprofen",
	"amoxicillin",
	"metformin",
	"aspirin",
	"neurologist",
	"cardiologist",
	"bronchitis",
	"arthritis",
	"migraine",
	"cholesterol",
	"insulin",
	"antibiotic",
	"hemoglobin",
	"electrocardiogram",
	"copd",
	"blood pressure",
	"heart rate",
	"stroke",
	"fever",
	"nausea",
	"allergy",
	"infection",
	"inflammation",
	"fracture",
	"prescription",
	"diagnosis",
	"symptoms",
}
