package config

import (
	"strconv"
	"strings"

	"github.com/pitabwire/frame/config"

	"github.com/voicecorpus/voicecorpus/internal/consensus"
)

// CorpusConfig holds configuration for the corpus service.
type CorpusConfig struct {
	config.ConfigurationDefault

	// Storage
	AudioDir   string `envDefault:"./data/audio"   env:"AUDIO_DIR"`
	ExportDir  string `envDefault:"./data/exports" env:"EXPORT_DIR"`
	ProfileDir string `envDefault:"./profiles"     env:"PROFILE_DIR"`

	// Uploads
	MaxUploadMB int `envDefault:"256" env:"MAX_UPLOAD_MB"`

	// Consensus
	MinTranscriptions   int     `envDefault:"3"    env:"CONSENSUS_MIN_TRANSCRIPTIONS"`
	ClusterThreshold    float64 `envDefault:"0.75" env:"CONSENSUS_CLUSTER_THRESHOLD"`
	ReviewThreshold     float64 `envDefault:"0.4"  env:"CONSENSUS_REVIEW_THRESHOLD"`
	ValidationThreshold float64 `envDefault:"0.7"  env:"CONSENSUS_VALIDATION_THRESHOLD"`

	// Export quota. RoleQuotas is a comma-separated role:limit list; roles
	// not listed fall back to DefaultDailyQuota. A limit of -1 is unlimited.
	DefaultDailyQuota int    `envDefault:"10"                           env:"DEFAULT_DAILY_QUOTA"`
	RoleQuotas        string `envDefault:"researcher:50,admin:-1"       env:"ROLE_QUOTAS"`

	// Pipeline
	PipelineWorkers int `envDefault:"8" env:"PIPELINE_WORKERS"`
}

// ConsensusParams builds the consensus tuning from the configured thresholds.
func (c *CorpusConfig) ConsensusParams() consensus.Params {
	return consensus.Params{
		MinTranscriptions:   c.MinTranscriptions,
		ClusterThreshold:    c.ClusterThreshold,
		ReviewThreshold:     c.ReviewThreshold,
		ValidationThreshold: c.ValidationThreshold,
	}
}

// QuotaPolicy builds the per-role daily limit lookup from the RoleQuotas
// string. Malformed entries are skipped.
func (c *CorpusConfig) QuotaPolicy() func(role string) int {
	limits := map[string]int{}
	for _, entry := range strings.Split(c.RoleQuotas, ",") {
		role, limit, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(limit))
		if err != nil {
			continue
		}
		limits[strings.TrimSpace(role)] = n
	}
	return func(role string) int {
		if n, ok := limits[role]; ok {
			return n
		}
		return c.DefaultDailyQuota
	}
}
