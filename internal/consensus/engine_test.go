package consensus

import (
	"testing"
	"time"

	"github.com/voicecorpus/voicecorpus/pkg/corpus"
)

func sub(id, text string, weight float64, at time.Time) Submission {
	return Submission{ID: id, Text: text, Weight: weight, SubmittedAt: at}
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestComputeBelowMinimum(t *testing.T) {
	subs := []Submission{
		sub("t1", "hello world", 1, t0),
		sub("t2", "hello world", 1, t0.Add(time.Minute)),
	}
	got := Compute(subs, DefaultParams())
	if got.Status != corpus.ChunkNeedsMoreData {
		t.Errorf("status = %v, want needs_more_data", got.Status)
	}
	if got.Count != 2 {
		t.Errorf("count = %d, want 2", got.Count)
	}
	if got.Reason != "below minimum transcription count" {
		t.Errorf("reason = %q", got.Reason)
	}
	if got.Text != "" {
		t.Errorf("text = %q, want empty", got.Text)
	}
}

func TestComputeEmptySubmissions(t *testing.T) {
	// No submissions must not panic even when the configured minimum is
	// zero; the chunk simply needs more data.
	p := DefaultParams()
	p.MinTranscriptions = 0
	got := Compute(nil, p)
	if got.Status != corpus.ChunkNeedsMoreData {
		t.Errorf("status = %v, want needs_more_data", got.Status)
	}
	if got.Count != 0 {
		t.Errorf("count = %d, want 0", got.Count)
	}
	if got.Reason != "below minimum transcription count" {
		t.Errorf("reason = %q", got.Reason)
	}
}

func TestComputeUnanimous(t *testing.T) {
	subs := []Submission{
		sub("t1", "the rain in spain", 1, t0),
		sub("t2", "the rain in spain", 1, t0.Add(time.Minute)),
		sub("t3", "the rain in spain", 1, t0.Add(2*time.Minute)),
	}
	got := Compute(subs, DefaultParams())
	if got.Status != corpus.ChunkValidated {
		t.Fatalf("status = %v, want validated", got.Status)
	}
	if got.Text != "the rain in spain" {
		t.Errorf("text = %q", got.Text)
	}
	if got.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", got.Confidence)
	}
}

func TestComputeMajorityWithOutlier(t *testing.T) {
	subs := []Submission{
		sub("t1", "the rain in spain", 1, t0),
		sub("t2", "the rain in spain", 1, t0.Add(time.Minute)),
		sub("t3", "the rain in spain", 1, t0.Add(2*time.Minute)),
		sub("t4", "completely unrelated gibberish", 1, t0.Add(3*time.Minute)),
	}
	got := Compute(subs, DefaultParams())
	if got.Status != corpus.ChunkValidated {
		t.Fatalf("status = %v (confidence %v), want validated", got.Status, got.Confidence)
	}
	if got.Text != "the rain in spain" {
		t.Errorf("text = %q", got.Text)
	}
	// 3 of 4 agree exactly: confidence 0.75.
	if got.Confidence != 0.75 {
		t.Errorf("confidence = %v, want 0.75", got.Confidence)
	}
}

func TestComputeNearVariantsCluster(t *testing.T) {
	subs := []Submission{
		sub("t1", "the quick brown fox jumps over", 1, t0),
		sub("t2", "the quick brown fox jumps over", 1, t0.Add(time.Minute)),
		sub("t3", "the quick brown fox jump over", 1, t0.Add(2*time.Minute)),
	}
	got := Compute(subs, DefaultParams())
	if got.Status != corpus.ChunkValidated {
		t.Fatalf("status = %v (confidence %v), want validated", got.Status, got.Confidence)
	}
	if got.Text != "the quick brown fox jumps over" {
		t.Errorf("text = %q, want the exact-majority variant", got.Text)
	}
	if got.Confidence >= 1.0 {
		t.Errorf("confidence = %v, near variant should cost some confidence", got.Confidence)
	}
}

func TestComputeNonLatinVariants(t *testing.T) {
	// Three near-identical Bengali transcriptions (one missing a vowel
	// sign) against one unrelated sentence: the variants cluster and the
	// majority text validates.
	subs := []Submission{
		sub("t1", "আমি ভালো আছি", 1, t0),
		sub("t2", "আমি ভাল আছি", 1, t0.Add(time.Minute)),
		sub("t3", "আমি ভালো আছি", 1, t0.Add(2*time.Minute)),
		sub("t4", "সম্পূর্ণ ভিন্ন বাক্য", 1, t0.Add(3*time.Minute)),
	}
	got := Compute(subs, DefaultParams())
	if got.Status != corpus.ChunkValidated {
		t.Fatalf("status = %v (confidence %v), want validated", got.Status, got.Confidence)
	}
	if got.Text != "আমি ভালো আছি" {
		t.Errorf("text = %q, want the majority variant", got.Text)
	}
	if got.Confidence < 0.7 {
		t.Errorf("confidence = %v, want at least 0.7", got.Confidence)
	}
}

func TestComputeAllDisagree(t *testing.T) {
	subs := []Submission{
		sub("t1", "alpha bravo charlie", 1, t0),
		sub("t2", "delta echo foxtrot", 1, t0.Add(time.Minute)),
		sub("t3", "golf hotel india", 1, t0.Add(2*time.Minute)),
	}
	got := Compute(subs, DefaultParams())
	if got.Status != corpus.ChunkFlagged {
		t.Fatalf("status = %v (confidence %v), want flagged", got.Status, got.Confidence)
	}
	if got.Reason != "low agreement" {
		t.Errorf("reason = %q", got.Reason)
	}
	if got.Text != "" {
		t.Errorf("text = %q, want empty", got.Text)
	}
}

func TestComputePartialAgreement(t *testing.T) {
	// Two of three agree: confidence 2/3 sits between review and
	// validation thresholds.
	subs := []Submission{
		sub("t1", "hello there", 1, t0),
		sub("t2", "hello there", 1, t0.Add(time.Minute)),
		sub("t3", "unrelated words entirely", 1, t0.Add(2*time.Minute)),
	}
	got := Compute(subs, DefaultParams())
	if got.Status != corpus.ChunkNeedsMoreData {
		t.Fatalf("status = %v (confidence %v), want needs_more_data", got.Status, got.Confidence)
	}
	if got.Reason != "confidence below validation threshold" {
		t.Errorf("reason = %q", got.Reason)
	}
}

func TestComputeWeightsDecide(t *testing.T) {
	// A single highly reliable rater outweighs two agreeing ones.
	subs := []Submission{
		sub("t1", "version one of the text", 1, t0),
		sub("t2", "version one of the text", 1, t0.Add(time.Minute)),
		sub("t3", "a different reading", 5, t0.Add(2*time.Minute)),
	}
	got := Compute(subs, DefaultParams())
	if got.Status != corpus.ChunkValidated {
		t.Fatalf("status = %v (confidence %v), want validated", got.Status, got.Confidence)
	}
	if got.Text != "a different reading" {
		t.Errorf("text = %q, want the high-weight reading", got.Text)
	}
	// 5 / 7 of the total weight.
	want := 5.0 / 7.0
	if diff := got.Confidence - want; diff < -1e-12 || diff > 1e-12 {
		t.Errorf("confidence = %v, want %v", got.Confidence, want)
	}
}

func TestComputeZeroWeightDefaultsToOne(t *testing.T) {
	subs := []Submission{
		sub("t1", "same text", 0, t0),
		sub("t2", "same text", 0, t0.Add(time.Minute)),
		sub("t3", "same text", 0, t0.Add(2*time.Minute)),
	}
	got := Compute(subs, DefaultParams())
	if got.Status != corpus.ChunkValidated || got.Confidence != 1.0 {
		t.Errorf("status = %v confidence = %v, want validated at 1.0", got.Status, got.Confidence)
	}
}

func TestComputeTieBreaksByEarliest(t *testing.T) {
	p := Params{MinTranscriptions: 2, ClusterThreshold: 0.75, ReviewThreshold: 0.1, ValidationThreshold: 0.5}
	subs := []Submission{
		sub("t1", "second arrival text", 1, t0.Add(time.Hour)),
		sub("t2", "first arrival words", 1, t0),
	}
	got := Compute(subs, p)
	if got.Status != corpus.ChunkValidated {
		t.Fatalf("status = %v (confidence %v), want validated", got.Status, got.Confidence)
	}
	if got.Text != "first arrival words" {
		t.Errorf("text = %q, want the earlier submission", got.Text)
	}
}

func TestComputeDeterministic(t *testing.T) {
	subs := []Submission{
		sub("t1", "one version", 1, t0),
		sub("t2", "another version", 1, t0.Add(time.Minute)),
		sub("t3", "one version", 1, t0.Add(2*time.Minute)),
		sub("t4", "a third option here", 1, t0.Add(3*time.Minute)),
	}
	first := Compute(subs, DefaultParams())
	for i := 0; i < 5; i++ {
		if got := Compute(subs, DefaultParams()); got != first {
			t.Fatalf("run %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

func TestComputeMoreAgreementNeverLowersConfidence(t *testing.T) {
	base := []Submission{
		sub("t1", "steady text", 1, t0),
		sub("t2", "steady text", 1, t0.Add(time.Minute)),
		sub("t3", "noise words other", 1, t0.Add(2*time.Minute)),
	}
	before := Compute(base, DefaultParams())

	more := append(append([]Submission{}, base...),
		sub("t4", "steady text", 1, t0.Add(3*time.Minute)))
	after := Compute(more, DefaultParams())

	if after.Confidence < before.Confidence {
		t.Errorf("confidence dropped from %v to %v after an agreeing submission",
			before.Confidence, after.Confidence)
	}
}
