// Package upload implements the Upload Protocol (UP): the chunked-HTTP and
// streaming-WebSocket surfaces that drive Chunk Staging, then promote a
// finished staging file into the Blob Store and register its Entry in the
// Metadata Index. Grounded on the teacher's three-endpoint chunked-upload
// shape (ocdav/tus.go, ocdav/putchunked.go) for the HTTP variant's request
// lifecycle — though this package implements this service's own bespoke
// JSON/query-param wire format, not the TUS protocol those files speak.
package upload

import (
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/Dangoware/confetti-box/internal/config"
	"github.com/Dangoware/confetti-box/pkg/blobstore"
	"github.com/Dangoware/confetti-box/pkg/errtypes"
	"github.com/Dangoware/confetti-box/pkg/metaindex"
	"github.com/Dangoware/confetti-box/pkg/staging"
)

// startTimeout is the deadline granted to a newly started chunked upload,
// and again after each accepted chunk — the reference implementation's 30 s
// (spec §4.4.1 "Start"). WebSocket uploads use the registry's default
// timeout instead.
const startTimeout = 30 * time.Second

// Service implements both upload surfaces over a shared CS/BS/MI triple.
type Service struct {
	cs  *staging.Registry
	bs  *blobstore.Store
	idx *metaindex.Index
	cfg config.Settings
}

// New returns a Service wiring cs/bs/idx under cfg's validation limits.
func New(cs *staging.Registry, bs *blobstore.Store, idx *metaindex.Index, cfg config.Settings) *Service {
	return &Service{cs: cs, bs: bs, idx: idx, cfg: cfg}
}

// StartResult is returned to the client on a successful chunked-upload
// start: the UUID to address subsequent chunks with, and the chunk size the
// server has dictated (not negotiated — see SPEC_FULL's expansion notes).
type StartResult struct {
	UUID      uuid.UUID
	ChunkSize uint64
}

// validateStart enforces the size/duration guards shared by both upload
// surfaces (spec §4.4.1: "size ≤ max_filesize", "expire_duration ≤
// max_duration", and, if configured, membership in the allowed list).
func (s *Service) validateStart(name string, size uint64, expireDuration time.Duration) error {
	if name == "" {
		return errtypes.Validation("name must not be empty")
	}
	if size > s.cfg.MaxFilesize {
		return errtypes.Validation("size exceeds max_filesize")
	}
	if !s.cfg.DurationAllowed(expireDuration) {
		return errtypes.Validation("expire_duration not allowed")
	}
	return nil
}

// StartChunked begins a chunked-HTTP upload.
func (s *Service) StartChunked(name string, size uint64, expireDuration time.Duration) (StartResult, error) {
	if err := s.validateStart(name, size, expireDuration); err != nil {
		return StartResult{}, err
	}

	sess, err := s.cs.NewUploadWithTimeout(name, size, expireDuration, s.cfg.MaxFilesize, startTimeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{UUID: sess.ID, ChunkSize: sess.ChunkSize}, nil
}

// ContinueChunked writes chunk index into the staging file belonging to id.
func (s *Service) ContinueChunked(id uuid.UUID, index uint64, data io.Reader) error {
	return s.cs.RecordChunk(id, index, data)
}

// FinishChunked promotes id's staging file into the blob store and
// registers a fresh Entry in the index.
func (s *Service) FinishChunked(id uuid.UUID) (metaindex.Entry, error) {
	return s.cs.Promote(id, s.bs, s.idx)
}

// CancelChunked aborts an in-progress chunked upload, discarding its
// staging file.
func (s *Service) CancelChunked(id uuid.UUID) {
	s.cs.Cancel(id)
}
