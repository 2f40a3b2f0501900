package consensus

import (
	"time"

	"github.com/voicecorpus/voicecorpus/pkg/corpus"
)

// Params are the consensus thresholds. All similarity values live in [0, 1].
type Params struct {
	MinTranscriptions   int
	ClusterThreshold    float64
	ReviewThreshold     float64
	ValidationThreshold float64
}

// DefaultParams returns the standard consensus configuration.
func DefaultParams() Params {
	return Params{
		MinTranscriptions:   3,
		ClusterThreshold:    0.75,
		ReviewThreshold:     0.4,
		ValidationThreshold: 0.7,
	}
}

// Submission is one transcription considered for consensus. Weight is the
// externally supplied rater reliability, 1.0 when absent.
type Submission struct {
	ID          string
	Text        string
	Weight      float64
	SubmittedAt time.Time
}

// Result is the outcome of one consensus computation. Status is the chunk
// status the computation decides; Text is empty unless validated.
type Result struct {
	Status     corpus.ChunkStatus
	Text       string
	Confidence float64
	Count      int
	Reason     string
}

type cluster struct {
	representative string
	members        []Submission
	weight         float64
}

// Compute derives the consensus result for a chunk's submissions. It is a
// pure function of its inputs: recomputing on the same submission set, in
// submission order, yields an identical result.
func Compute(subs []Submission, p Params) Result {
	if len(subs) == 0 {
		return Result{
			Status: corpus.ChunkNeedsMoreData,
			Reason: "below minimum transcription count",
		}
	}
	if len(subs) < p.MinTranscriptions {
		return Result{
			Status: corpus.ChunkNeedsMoreData,
			Count:  len(subs),
			Reason: "below minimum transcription count",
		}
	}

	clusters := clusterSubmissions(subs, p.ClusterThreshold)
	winner := pickWinner(clusters)

	var totalWeight float64
	for _, s := range subs {
		totalWeight += weightOf(s)
	}

	agreement := clusterAgreement(winner)
	confidence := winner.weight / totalWeight * agreement

	res := Result{
		Confidence: confidence,
		Count:      len(subs),
	}
	switch {
	case confidence < p.ReviewThreshold:
		res.Status = corpus.ChunkFlagged
		res.Reason = "low agreement"
	case confidence >= p.ValidationThreshold:
		res.Status = corpus.ChunkValidated
		res.Text = winner.representative
	default:
		res.Status = corpus.ChunkNeedsMoreData
		res.Reason = "confidence below validation threshold"
	}
	return res
}

// clusterSubmissions greedily places each submission into the cluster whose
// representative it most resembles, starting a new cluster when no
// representative clears the threshold.
func clusterSubmissions(subs []Submission, threshold float64) []*cluster {
	var clusters []*cluster
	for _, s := range subs {
		var best *cluster
		bestScore := 0.0
		for _, c := range clusters {
			score := Similarity(c.representative, s.Text)
			if score > bestScore {
				best, bestScore = c, score
			}
		}
		if best != nil && bestScore >= threshold {
			best.members = append(best.members, s)
			best.weight += weightOf(s)
			continue
		}
		clusters = append(clusters, &cluster{
			representative: s.Text,
			members:        []Submission{s},
			weight:         weightOf(s),
		})
	}
	return clusters
}

// pickWinner selects the cluster with the largest weighted membership,
// breaking ties by higher mean intra-cluster similarity and then by the
// earliest-submitted member.
func pickWinner(clusters []*cluster) *cluster {
	winner := clusters[0]
	for _, c := range clusters[1:] {
		switch {
		case c.weight > winner.weight:
			winner = c
		case c.weight == winner.weight:
			cs, ws := clusterAgreement(c), clusterAgreement(winner)
			if cs > ws || (cs == ws && earliest(c).Before(earliest(winner))) {
				winner = c
			}
		}
	}
	return winner
}

// clusterAgreement is the mean similarity of cluster members to the
// cluster representative; a single-member cluster scores 1.0.
func clusterAgreement(c *cluster) float64 {
	var sum float64
	for _, m := range c.members {
		sum += Similarity(c.representative, m.Text)
	}
	return sum / float64(len(c.members))
}

func earliest(c *cluster) time.Time {
	t := c.members[0].SubmittedAt
	for _, m := range c.members[1:] {
		if m.SubmittedAt.Before(t) {
			t = m.SubmittedAt
		}
	}
	return t
}

func weightOf(s Submission) float64 {
	if s.Weight <= 0 {
		return 1.0
	}
	return s.Weight
}
