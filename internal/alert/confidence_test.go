package alert

import "testing"

func TestOverallConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sources []Provenance
		want    Confidence
	}{
		{
			name:    "no sources",
			sources: nil,
			want:    ConfidenceLow,
		},
		{
			name: "unverified high never raises",
			sources: []Provenance{
				{SourceName: "forum post", Verified: false, Confidence: ConfidenceHigh},
			},
			want: ConfidenceLow,
		},
		{
			name: "verified medium beats unverified high",
			sources: []Provenance{
				{SourceName: "vendor advisory", Verified: true, Confidence: ConfidenceMedium},
				{SourceName: "forum post", Verified: false, Confidence: ConfidenceHigh},
			},
			want: ConfidenceMedium,
		},
		{
			name: "verified high wins",
			sources: []Provenance{
				{SourceName: "vendor advisory", Verified: true, Confidence: ConfidenceMedium},
				{SourceName: "nvd", Verified: true, Confidence: ConfidenceHigh},
			},
			want: ConfidenceHigh,
		},
		{
			name: "verified low only",
			sources: []Provenance{
				{SourceName: "scanner", Verified: true, Confidence: ConfidenceLow},
			},
			want: ConfidenceLow,
		},
		{
			name: "order does not matter",
			sources: []Provenance{
				{SourceName: "nvd", Verified: true, Confidence: ConfidenceHigh},
				{SourceName: "scanner", Verified: true, Confidence: ConfidenceLow},
			},
			want: ConfidenceHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := OverallConfidence(tt.sources); got != tt.want {
				t.Errorf("OverallConfidence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestImpactLevelRank(t *testing.T) {
	t.Parallel()

	if ImpactRed.Rank() >= ImpactYellow.Rank() || ImpactYellow.Rank() >= ImpactGreen.Rank() {
		t.Error("impact ranks out of order: want RED < YELLOW < GREEN")
	}
	if ImpactLevel("PURPLE").Rank() <= ImpactGreen.Rank() {
		t.Error("unknown impact level must rank after GREEN")
	}
	if ImpactLevel("PURPLE").Valid() {
		t.Error("unknown impact level reported valid")
	}
}
