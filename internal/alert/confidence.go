package alert

// OverallConfidence derives a single confidence verdict for an alert from
// its provenance records. Only verified sources count: any verified High
// source yields High, otherwise any verified Medium yields Medium,
// otherwise Low (including when nothing is verified at all). An unverified
// source never raises the verdict, no matter what confidence it claims.
func OverallConfidence(sources []Provenance) Confidence {
	verdict := ConfidenceLow
	for _, s := range sources {
		if !s.Verified {
			continue
		}
		switch s.Confidence {
		case ConfidenceHigh:
			return ConfidenceHigh
		case ConfidenceMedium:
			verdict = ConfidenceMedium
		}
	}
	return verdict
}
