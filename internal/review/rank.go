package review

import (
	"sort"

	"github.com/linnemanlabs/ward/internal/alert"
)

// Rank sorts alerts in place by urgency: impact level first (RED before
// YELLOW before GREEN, unknown levels last), then total score descending,
// then detection time descending so recently detected alerts win ties.
// The sort is stable, so alerts equal on all three keys keep their relative
// order across repeated calls with the same input.
func Rank(alerts []alert.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return moreUrgent(&alerts[i], &alerts[j])
	})
}

// Ranked returns a ranked copy, leaving the input untouched. Ranking is a
// pure read over a point-in-time snapshot; it never blocks writers.
func Ranked(alerts []alert.Alert) []alert.Alert {
	out := make([]alert.Alert, len(alerts))
	copy(out, alerts)
	Rank(out)
	return out
}

func moreUrgent(a, b *alert.Alert) bool {
	if ar, br := a.ImpactLevel.Rank(), b.ImpactLevel.Rank(); ar != br {
		return ar < br
	}
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	return a.DetectedAt.After(b.DetectedAt)
}
