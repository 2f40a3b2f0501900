package corpus

import "testing"

func TestValidRecordingTransition(t *testing.T) {
	tests := []struct {
		from, to RecordingStatus
		want     bool
	}{
		{RecordingUploaded, RecordingProcessing, true},
		{RecordingUploaded, RecordingFailed, true},
		{RecordingUploaded, RecordingChunked, false},
		{RecordingProcessing, RecordingChunked, true},
		{RecordingProcessing, RecordingFailed, true},
		{RecordingProcessing, RecordingUploaded, false},
		{RecordingFailed, RecordingProcessing, true},
		{RecordingFailed, RecordingChunked, false},
		{RecordingChunked, RecordingProcessing, false},
		{RecordingChunked, RecordingFailed, false},
	}
	for _, tt := range tests {
		if got := ValidRecordingTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("recording %s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidChunkTransition(t *testing.T) {
	tests := []struct {
		from, to ChunkStatus
		want     bool
	}{
		{ChunkUnvalidated, ChunkNeedsMoreData, true},
		{ChunkUnvalidated, ChunkValidated, true},
		{ChunkUnvalidated, ChunkFlagged, true},
		{ChunkNeedsMoreData, ChunkValidated, true},
		{ChunkNeedsMoreData, ChunkFlagged, true},
		{ChunkNeedsMoreData, ChunkNeedsMoreData, true},
		{ChunkNeedsMoreData, ChunkUnvalidated, false},
		{ChunkFlagged, ChunkNeedsMoreData, true},
		{ChunkFlagged, ChunkValidated, false},
		{ChunkFlagged, ChunkUnvalidated, false},
		{ChunkValidated, ChunkNeedsMoreData, false},
		{ChunkValidated, ChunkFlagged, false},
	}
	for _, tt := range tests {
		if got := ValidChunkTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("chunk %s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidBatchTransition(t *testing.T) {
	tests := []struct {
		from, to BatchStatus
		want     bool
	}{
		{BatchPending, BatchProcessing, true},
		{BatchPending, BatchCompleted, false},
		{BatchProcessing, BatchCompleted, true},
		{BatchProcessing, BatchFailed, true},
		{BatchProcessing, BatchPending, false},
		{BatchFailed, BatchProcessing, true},
		{BatchFailed, BatchCompleted, false},
		{BatchCompleted, BatchProcessing, false},
		{BatchCompleted, BatchFailed, false},
	}
	for _, tt := range tests {
		if got := ValidBatchTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("batch %s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
