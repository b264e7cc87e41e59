package transform

// GroupShares returns each measure as a percentage of its group's total.
// Totals sum the non-nil measures of a group. A nil measure, or a group whose
// total is zero, yields nil rather than NaN or Inf.
func GroupShares(groups []string, measures []*float64) []*float64 {
	totals := make(map[string]float64, len(groups))
	for i, g := range groups {
		if i < len(measures) && measures[i] != nil {
			totals[g] += *measures[i]
		}
	}

	out := make([]*float64, len(groups))
	for i, g := range groups {
		if i >= len(measures) || measures[i] == nil {
			continue
		}
		total := totals[g]
		if total == 0 {
			continue
		}
		share := *measures[i] / total * 100
		out[i] = &share
	}
	return out
}
