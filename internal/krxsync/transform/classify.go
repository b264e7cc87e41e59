package transform

import "strings"

// Unclassified is returned by Classify when no rule matches.
const Unclassified = "N/A"

// Rule maps a KRX sector label keyword to a GICS sector code.
type Rule struct {
	Keyword string
	Code    string
}

// GICSRules is evaluated in order and the first keyword contained in the
// label wins. "운송" precedes "운송장비", so transport-equipment labels map to 20.
var GICSRules = []Rule{
	{"비금속", "15"}, {"금속", "15"}, {"종이", "15"}, {"화학", "15"},
	{"기계", "20"}, {"일반서비스", "20"}, {"건설", "20"}, {"운송", "20"}, {"기타제조", "20"},
	{"섬유", "25"}, {"운송장비", "25"}, {"유통", "25"},
	{"농업", "30"}, {"음식료", "30"},
	{"제약", "35"}, {"의료", "35"},
	{"금융", "40"}, {"은행", "40"}, {"증권", "40"}, {"보험", "40"}, {"기타금융", "40"},
	{"IT 서비스", "45"}, {"전자", "45"},
	{"출판", "50"}, {"오락", "50"}, {"통신", "50"},
	{"전기", "55"}, {"가스", "55"}, {"수도", "55"},
	{"부동산", "60"},
}

// Classify returns the code of the first rule whose keyword is a
// case-sensitive substring of label, or Unclassified.
func Classify(label string) string {
	return ClassifyWith(GICSRules, label)
}

// ClassifyWith is Classify over an arbitrary ordered rule set.
func ClassifyWith(rules []Rule, label string) string {
	for _, r := range rules {
		if strings.Contains(label, r.Keyword) {
			return r.Code
		}
	}
	return Unclassified
}
