package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ExportFilter selects validated chunks for an export batch.
type ExportFilter struct {
	From           *time.Time
	To             *time.Time
	MinDurationSec float64
	MaxDurationSec float64
	QualityFloor   float64
}

// Signature returns a stable hash of the filter criteria, used to detect
// repeat export requests with identical filters.
func (f ExportFilter) Signature() string {
	canon := fmt.Sprintf("from=%s|to=%s|mind=%.3f|maxd=%.3f|q=%.3f",
		formatTimePtr(f.From), formatTimePtr(f.To),
		f.MinDurationSec, f.MaxDurationSec, f.QualityFloor)
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:])
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
