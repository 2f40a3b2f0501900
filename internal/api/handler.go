package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/voicecorpus/voicecorpus/internal/audio"
	"github.com/voicecorpus/voicecorpus/internal/consensus"
	"github.com/voicecorpus/voicecorpus/internal/export"
	"github.com/voicecorpus/voicecorpus/pkg/corpus"
	"github.com/voicecorpus/voicecorpus/pkg/events"
)

const (
	defaultMaxUploadMB = 256
	maxRequestBodySize = 1 << 20 // 1 MiB

	// Identity headers set by the authorizing front layer. The core never
	// validates credentials itself.
	identityHeader = "X-Identity-ID"
	roleHeader     = "X-Identity-Role"
)

// Handler provides the REST surface of the corpus core.
type Handler struct {
	repo       *corpus.Repository
	store      *audio.Store
	quota      *corpus.QuotaStore
	consensus  *consensus.Service
	builder    *export.Builder
	pub        *events.Publisher
	maxAudioMB int
}

// NewHandler creates the corpus API handler. maxAudioMB caps the upload
// body size; zero or negative selects the default.
func NewHandler(repo *corpus.Repository, store *audio.Store, quota *corpus.QuotaStore,
	cons *consensus.Service, builder *export.Builder, pub *events.Publisher, maxAudioMB int) *Handler {
	if maxAudioMB <= 0 {
		maxAudioMB = defaultMaxUploadMB
	}
	return &Handler{
		repo: repo, store: store, quota: quota,
		consensus: cons, builder: builder, pub: pub,
		maxAudioMB: maxAudioMB,
	}
}

// RegisterRoutes registers all corpus API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/recordings", h.SubmitRecording)
	mux.HandleFunc("GET /api/v1/recordings/{id}", h.GetRecording)
	mux.HandleFunc("GET /api/v1/recordings/{id}/chunks", h.ListChunks)
	mux.HandleFunc("POST /api/v1/chunks/{id}/transcriptions", h.SubmitTranscription)
	mux.HandleFunc("POST /api/v1/chunks/{id}/clear-flag", h.ClearFlag)
	mux.HandleFunc("POST /api/v1/exports", h.RequestExport)
	mux.HandleFunc("GET /api/v1/exports/{id}", h.GetExport)
	mux.HandleFunc("POST /api/v1/exports/{id}/retry", h.RetryExport)
	mux.HandleFunc("GET /api/v1/exports/{id}/download", h.DownloadExport)
	mux.HandleFunc("GET /api/v1/quota", h.GetQuota)
	mux.HandleFunc("GET /api/v1/events", h.StreamEvents)
}

// StreamEvents handles GET /api/v1/events. It streams pipeline events to
// the client as server-sent events until the connection closes. The types
// query parameter, a comma-separated list of event type names, restricts
// the stream; absent, every event is delivered.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, ReasonInternal, "streaming is not supported")
		return
	}

	allowed := make(map[events.EventType]bool)
	if want := r.URL.Query().Get("types"); want != "" {
		for _, t := range strings.Split(want, ",") {
			allowed[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	subID := xid.New().String()
	ch := h.pub.Subscribe(subID, 128)
	defer h.pub.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case env, open := <-ch:
			if !open {
				return
			}
			if len(allowed) > 0 && !allowed[env.Type] {
				continue
			}
			payload, err := json.Marshal(env)
			if err != nil {
				slog.Warn("event stream: marshal failed", slog.String("event_id", env.ID))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, payload)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Reason: reason})
}

func writeErrorDetail(w http.ResponseWriter, status int, reason, msg string, detail map[string]any) {
	writeJSON(w, status, ErrorResponse{Error: msg, Reason: reason, Detail: detail})
}

func identity(r *http.Request) (id, role string) {
	return r.Header.Get(identityHeader), r.Header.Get(roleHeader)
}

// SubmitRecording handles POST /api/v1/recordings. The body is the raw WAV
// byte stream; owner, script reference and chunking profile ride in query
// parameters. Chunking runs in the background; callers poll the recording.
func (h *Handler) SubmitRecording(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxAudioMB)<<20)

	ownerID, _ := identity(r)
	if ownerID == "" {
		ownerID = r.URL.Query().Get("owner_id")
	}
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, ReasonBadRequest, "owner identity is required")
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ReasonBadRequest, "reading audio body: "+err.Error())
		return
	}

	// Decode up front so corrupt uploads are rejected with no state
	// persisted at all.
	wf, err := audio.DecodeWAV(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, ReasonInvalidAudio, err.Error())
		return
	}

	rec := &corpus.Recording{
		OwnerID:     ownerID,
		ScriptRef:   r.URL.Query().Get("script_ref"),
		Profile:     profileOrDefault(r.URL.Query().Get("profile")),
		SampleRate:  wf.SampleRate,
		DurationSec: wf.DurationSec(),
		Status:      corpus.RecordingUploaded,
	}
	if err := h.repo.CreateRecording(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, ReasonInternal, "failed to create recording")
		return
	}

	path, err := h.store.Save(rec.ID, raw)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ReasonInternal, "failed to store audio")
		return
	}
	if err := h.repo.SetRecordingAudioPath(r.Context(), rec.ID, path); err != nil {
		writeError(w, http.StatusInternalServerError, ReasonInternal, "failed to store audio path")
		return
	}

	if err := h.pub.Emit(r.Context(), events.JobChunkRecording, rec.ID, events.JobData{Key: rec.ID}); err != nil {
		slog.ErrorContext(r.Context(), "enqueue chunking job",
			slog.String("recording_id", rec.ID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, ReasonInternal, "failed to enqueue chunking")
		return
	}
	_ = h.pub.Emit(r.Context(), events.RecordingSubmitted, rec.ID, events.RecordingSubmittedData{
		RecordingID: rec.ID, OwnerID: rec.OwnerID, DurationSec: rec.DurationSec,
	})

	writeJSON(w, http.StatusAccepted, toRecordingResponse(rec))
}

func profileOrDefault(p string) string {
	if p == "" {
		return "default"
	}
	return p
}

// GetRecording handles GET /api/v1/recordings/{id}
func (h *Handler) GetRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.GetRecording(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, ReasonNotFound, "recording not found")
		return
	}
	writeJSON(w, http.StatusOK, toRecordingResponse(rec))
}

// ListChunks handles GET /api/v1/recordings/{id}/chunks
func (h *Handler) ListChunks(w http.ResponseWriter, r *http.Request) {
	recordingID := r.PathValue("id")
	if _, err := h.repo.GetRecording(r.Context(), recordingID); err != nil {
		writeError(w, http.StatusNotFound, ReasonNotFound, "recording not found")
		return
	}

	chunks, err := h.repo.ListChunks(r.Context(), recordingID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ReasonInternal, "failed to list chunks")
		return
	}

	resp := make([]ChunkResponse, 0, len(chunks))
	for i := range chunks {
		cr := toChunkResponse(&chunks[i])
		if cs, err := h.repo.GetConsensus(r.Context(), chunks[i].ID); err == nil {
			cr.ConsensusText = cs.Text
			conf := cs.Confidence
			cr.Confidence = &conf
			cr.TranscriptionCount = cs.TranscriptionCount
		}
		resp = append(resp, cr)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SubmitTranscription handles POST /api/v1/chunks/{id}/transcriptions.
// The transcription is stored immutably and consensus recomputes before
// the response, so the caller sees the resulting chunk state.
func (h *Handler) SubmitTranscription(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	chunkID := r.PathValue("id")

	var req SubmitTranscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ReasonBadRequest, "invalid request body")
		return
	}
	if req.SubmitterID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, ReasonBadRequest, "submitter_id and text are required")
		return
	}

	chunk, err := h.repo.GetChunk(r.Context(), chunkID)
	if err != nil {
		writeError(w, http.StatusNotFound, ReasonNotFound, "chunk not found")
		return
	}

	t := &corpus.Transcription{
		ChunkID:           chunk.ID,
		SubmitterID:       req.SubmitterID,
		Text:              req.Text,
		ReliabilityWeight: 1.0,
	}
	if req.SelfQuality != nil {
		t.SelfQuality.Float64, t.SelfQuality.Valid = *req.SelfQuality, true
	}
	if req.ReliabilityWeight != nil && *req.ReliabilityWeight > 0 {
		t.ReliabilityWeight = *req.ReliabilityWeight
	}
	if err := h.repo.CreateTranscription(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, ReasonInternal, "failed to store transcription")
		return
	}

	_ = h.pub.Emit(r.Context(), events.TranscriptionAdded, chunk.ID,
		events.TranscriptionAddedData{ChunkID: chunk.ID, SubmitterID: req.SubmitterID})

	if err := h.consensus.Recompute(r.Context(), chunk.ID); err != nil {
		writeError(w, http.StatusInternalServerError, ReasonInternal, "consensus recompute failed")
		return
	}

	resp := SubmitTranscriptionResponse{TranscriptionID: t.ID}
	if c, err := h.repo.GetChunk(r.Context(), chunk.ID); err == nil {
		resp.ChunkStatus = string(c.Status)
	}
	if cs, err := h.repo.GetConsensus(r.Context(), chunk.ID); err == nil {
		resp.Confidence = cs.Confidence
		resp.Count = cs.TranscriptionCount
		resp.Reason = cs.ReviewReason
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ClearFlag handles POST /api/v1/chunks/{id}/clear-flag. This is the
// external manual-review clearance: the chunk re-enters the consensus
// pipeline and a recompute job is queued.
func (h *Handler) ClearFlag(w http.ResponseWriter, r *http.Request) {
	chunkID := r.PathValue("id")
	if err := h.repo.ClearFlagged(r.Context(), chunkID); err != nil {
		if errors.Is(err, corpus.ErrNotFound) {
			writeError(w, http.StatusNotFound, ReasonNotFound, "chunk not found")
			return
		}
		writeError(w, http.StatusConflict, ReasonBadRequest, err.Error())
		return
	}
	if err := h.pub.Emit(r.Context(), events.JobRecomputeConsensus, chunkID, events.JobData{Key: chunkID}); err != nil {
		slog.WarnContext(r.Context(), "enqueue consensus job",
			slog.String("chunk_id", chunkID), slog.String("error", err.Error()))
	}
	w.WriteHeader(http.StatusAccepted)
}

// RequestExport handles POST /api/v1/exports.
func (h *Handler) RequestExport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	requesterID, role := identity(r)
	if requesterID == "" {
		writeError(w, http.StatusBadRequest, ReasonBadRequest, "requester identity is required")
		return
	}

	var req RequestExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ReasonBadRequest, "invalid request body")
		return
	}

	filter, err := parseFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, ReasonBadRequest, err.Error())
		return
	}

	batch, reused, err := h.builder.Request(r.Context(), requesterID, role, filter, req.ForceCreate)
	if err != nil {
		h.writeExportError(w, r, err, requesterID, role)
		return
	}

	if reused {
		writeJSON(w, http.StatusOK, toBatchResponse(batch))
		return
	}

	if err := h.pub.Emit(r.Context(), events.JobBuildExport, batch.ID, events.JobData{Key: batch.ID}); err != nil {
		slog.ErrorContext(r.Context(), "enqueue export job",
			slog.String("batch_id", batch.ID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, ReasonInternal, "failed to enqueue packaging")
		return
	}
	writeJSON(w, http.StatusAccepted, toBatchResponse(batch))
}

func (h *Handler) writeExportError(w http.ResponseWriter, r *http.Request, err error, requesterID, role string) {
	switch {
	case errors.Is(err, export.ErrInsufficientChunks):
		writeErrorDetail(w, http.StatusUnprocessableEntity, ReasonInsufficientChunks,
			"no validated chunks match the filter", map[string]any{"matched": 0})
	case errors.Is(err, corpus.ErrQuotaExceeded):
		st, _ := h.quota.Status(r.Context(), requesterID, role)
		writeErrorDetail(w, http.StatusTooManyRequests, ReasonQuotaExceeded,
			"daily download quota exceeded", map[string]any{
				"daily_limit": st.DailyLimit,
				"resets_at":   st.ResetsAt.Format(time.RFC3339),
			})
	default:
		writeError(w, http.StatusInternalServerError, ReasonInternal, "export request failed")
	}
}

// GetExport handles GET /api/v1/exports/{id}
func (h *Handler) GetExport(w http.ResponseWriter, r *http.Request) {
	batch, err := h.repo.GetBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, ReasonNotFound, "export batch not found")
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(batch))
}

// RetryExport handles POST /api/v1/exports/{id}/retry. Only failed batches
// may retry; the frozen chunk selection is reused as-is.
func (h *Handler) RetryExport(w http.ResponseWriter, r *http.Request) {
	batch, err := h.repo.GetBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, ReasonNotFound, "export batch not found")
		return
	}
	if batch.Status != corpus.BatchFailed {
		writeError(w, http.StatusConflict, ReasonBadRequest,
			fmt.Sprintf("batch is %s, only failed batches retry", batch.Status))
		return
	}
	if err := h.pub.Emit(r.Context(), events.JobBuildExport, batch.ID, events.JobData{Key: batch.ID}); err != nil {
		writeError(w, http.StatusInternalServerError, ReasonInternal, "failed to enqueue packaging")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DownloadExport handles GET /api/v1/exports/{id}/download. Each
// successful download consumes one quota slot; the check happens before
// any bytes are sent.
func (h *Handler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	identityID, role := identity(r)
	if identityID == "" {
		writeError(w, http.StatusBadRequest, ReasonBadRequest, "identity is required")
		return
	}

	batch, err := h.repo.GetBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, ReasonNotFound, "export batch not found")
		return
	}
	if batch.Status != corpus.BatchCompleted {
		writeErrorDetail(w, http.StatusConflict, ReasonNotReady,
			"export batch is not ready", map[string]any{"status": string(batch.Status)})
		return
	}

	if err := h.quota.Consume(r.Context(), identityID, role); err != nil {
		if errors.Is(err, corpus.ErrQuotaExceeded) {
			st, _ := h.quota.Status(r.Context(), identityID, role)
			writeErrorDetail(w, http.StatusTooManyRequests, ReasonQuotaExceeded,
				"daily download quota exceeded", map[string]any{
					"daily_limit": st.DailyLimit,
					"resets_at":   st.ResetsAt.Format(time.RFC3339),
				})
			return
		}
		writeError(w, http.StatusInternalServerError, ReasonInternal, "quota check failed")
		return
	}

	f, err := h.builder.Open(batch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ReasonInternal, "failed to open archive")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Length", strconv.FormatInt(batch.SizeBytes, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", batch.ID+".tar.gz"))
	w.Header().Set("X-Archive-Checksum", batch.Checksum)
	if _, err := io.Copy(w, f); err != nil {
		slog.WarnContext(r.Context(), "streaming archive",
			slog.String("batch_id", batch.ID), slog.String("error", err.Error()))
	}
}

// GetQuota handles GET /api/v1/quota
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	identityID, role := identity(r)
	if identityID == "" {
		writeError(w, http.StatusBadRequest, ReasonBadRequest, "identity is required")
		return
	}
	st, err := h.quota.Status(r.Context(), identityID, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ReasonInternal, "quota lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, QuotaResponse{
		Remaining:  st.Remaining,
		DailyLimit: st.DailyLimit,
		ResetsAt:   st.ResetsAt.Format(time.RFC3339),
	})
}

func toRecordingResponse(rec *corpus.Recording) RecordingResponse {
	return RecordingResponse{
		ID:          rec.ID,
		OwnerID:     rec.OwnerID,
		ScriptRef:   rec.ScriptRef,
		Profile:     rec.Profile,
		SampleRate:  rec.SampleRate,
		DurationSec: rec.DurationSec,
		Status:      string(rec.Status),
		FailReason:  rec.FailReason,
		ChunkCount:  rec.ChunkCount,
		CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
	}
}

func toChunkResponse(c *corpus.Chunk) ChunkResponse {
	return ChunkResponse{
		ID:                 c.ID,
		RecordingID:        c.RecordingID,
		Index:              c.Index,
		StartSec:           c.StartSec,
		EndSec:             c.EndSec,
		DurationSec:        c.DurationSec,
		BoundaryConfidence: c.BoundaryConfidence,
		Status:             string(c.Status),
	}
}

func toBatchResponse(b *corpus.ExportBatch) BatchResponse {
	resp := BatchResponse{
		ID:          b.ID,
		RequesterID: b.RequesterID,
		Status:      string(b.Status),
		ChunkCount:  len(b.ChunkIDs),
		Checksum:    b.Checksum,
		SizeBytes:   b.SizeBytes,
		RetryCount:  b.RetryCount,
		FailReason:  b.FailReason,
		CreatedAt:   b.CreatedAt.Format(time.RFC3339),
	}
	if b.CompletedAt.Valid {
		resp.CompletedAt = b.CompletedAt.Time.Format(time.RFC3339)
	}
	return resp
}

func parseFilter(req RequestExportRequest) (corpus.ExportFilter, error) {
	var f corpus.ExportFilter
	if req.From != "" {
		t, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			return f, fmt.Errorf("invalid from date: %w", err)
		}
		f.From = &t
	}
	if req.To != "" {
		t, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			return f, fmt.Errorf("invalid to date: %w", err)
		}
		f.To = &t
	}
	if req.MinDurationSec < 0 || req.MaxDurationSec < 0 || req.QualityFloor < 0 || req.QualityFloor > 1 {
		return f, errors.New("duration bounds must be non-negative and quality floor in [0, 1]")
	}
	if req.MaxDurationSec > 0 && req.MinDurationSec > req.MaxDurationSec {
		return f, errors.New("min duration exceeds max duration")
	}
	f.MinDurationSec = req.MinDurationSec
	f.MaxDurationSec = req.MaxDurationSec
	f.QualityFloor = req.QualityFloor
	return f, nil
}
