package config

import "testing"

func TestQuotaPolicy(t *testing.T) {
	cfg := CorpusConfig{
		DefaultDailyQuota: 10,
		RoleQuotas:        "researcher:50, admin:-1 ,broken,alsobad:x",
	}
	policy := cfg.QuotaPolicy()

	tests := []struct {
		role string
		want int
	}{
		{"researcher", 50},
		{"admin", -1},
		{"contributor", 10},
		{"", 10},
		{"broken", 10},
		{"alsobad", 10},
	}
	for _, tt := range tests {
		if got := policy(tt.role); got != tt.want {
			t.Errorf("policy(%q) = %d, want %d", tt.role, got, tt.want)
		}
	}
}

func TestConsensusParams(t *testing.T) {
	cfg := CorpusConfig{
		MinTranscriptions:   4,
		ClusterThreshold:    0.8,
		ReviewThreshold:     0.3,
		ValidationThreshold: 0.75,
	}
	p := cfg.ConsensusParams()
	if p.MinTranscriptions != 4 || p.ClusterThreshold != 0.8 ||
		p.ReviewThreshold != 0.3 || p.ValidationThreshold != 0.75 {
		t.Errorf("params = %+v", p)
	}
}
