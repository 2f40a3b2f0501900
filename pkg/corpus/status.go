package corpus

import "fmt"

// ErrInvalidTransition wraps a rejected status change.
func errInvalidTransition(kind string, from, to fmt.Stringer) error {
	return fmt.Errorf("invalid %s transition: %s -> %s", kind, from, to)
}

func (s RecordingStatus) String() string { return string(s) }
func (s ChunkStatus) String() string     { return string(s) }
func (s BatchStatus) String() string     { return string(s) }

// ValidRecordingTransition enforces the recording state machine edges.
// failed is re-enterable into processing so a retried upload can be
// re-chunked; chunked is terminal.
func ValidRecordingTransition(from, to RecordingStatus) bool {
	switch from {
	case RecordingUploaded:
		return to == RecordingProcessing || to == RecordingFailed
	case RecordingProcessing:
		return to == RecordingChunked || to == RecordingFailed
	case RecordingFailed:
		return to == RecordingProcessing
	default:
		return false
	}
}

// ValidChunkTransition enforces the chunk state machine edges. A flagged
// chunk stays flagged until cleared externally; validated is terminal for
// the consensus pipeline.
func ValidChunkTransition(from, to ChunkStatus) bool {
	switch from {
	case ChunkUnvalidated:
		return to == ChunkNeedsMoreData || to == ChunkValidated || to == ChunkFlagged
	case ChunkNeedsMoreData:
		return to == ChunkValidated || to == ChunkFlagged || to == ChunkNeedsMoreData
	case ChunkFlagged:
		// External clearance only.
		return to == ChunkNeedsMoreData
	default:
		return false
	}
}

// ValidBatchTransition enforces the export batch state machine. The only
// backward edge is failed -> processing for a retry; completed is terminal.
func ValidBatchTransition(from, to BatchStatus) bool {
	switch from {
	case BatchPending:
		return to == BatchProcessing
	case BatchProcessing:
		return to == BatchCompleted || to == BatchFailed
	case BatchFailed:
		return to == BatchProcessing
	default:
		return false
	}
}
