// Package staging implements Chunk Staging (CS): the in-memory registry of
// in-progress uploads, each owning a temporary file in a staging directory,
// a received-chunk bitmap, and a timeout deadline. Grounded on Camilo404's
// ChunkedUploadService (in-memory session map keyed by an opaque ID, a
// per-session mutex serializing writes to one staging file, and a
// CleanupExpired sweep), generalized to the content-addressed promote step
// and the chunk-aligned write guards this service requires.
package staging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dangoware/confetti-box/pkg/blobstore"
	"github.com/Dangoware/confetti-box/pkg/contenthash"
	"github.com/Dangoware/confetti-box/pkg/errtypes"
	"github.com/Dangoware/confetti-box/pkg/metaindex"
	"github.com/Dangoware/confetti-box/pkg/mmid"
)

// Session is the in-memory record (SU) for one in-progress upload.
type Session struct {
	ID             uuid.UUID
	Name           string
	DeclaredSize   uint64
	ExpireDuration time.Duration
	Path           string
	ChunkSize      uint64
	Deadline       time.Time
	timeout        time.Duration

	mu             sync.Mutex
	receivedChunks map[uint64]struct{}
	hasher         *contenthash.Hasher // streaming (WebSocket) variant only
	streamedBytes  uint64
}

func (s *Session) touchDeadline() {
	s.Deadline = time.Now().Add(s.timeout)
}

// Registry is the shared CS registry. The zero value is not usable; use New.
type Registry struct {
	dir            string
	chunkSize      uint64
	defaultTimeout time.Duration

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// New returns a Registry staging files under dir. chunkSize is the
// server-dictated chunk size handed back to clients on upload start (the
// spec does not negotiate it); defaultTimeout is the deadline duration
// granted to a new upload and refreshed on every chunk/frame when callers
// don't supply their own via NewUploadWithTimeout.
func New(dir string, chunkSize uint64, defaultTimeout time.Duration) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errtypes.InternalWrap(err, "staging: create directory")
	}
	return &Registry{
		dir:            dir,
		chunkSize:      chunkSize,
		defaultTimeout: defaultTimeout,
		sessions:       make(map[uuid.UUID]*Session),
	}, nil
}

func (r *Registry) path(id uuid.UUID) string {
	return r.dir + string(os.PathSeparator) + id.String()
}

// ChunkSize returns the chunk size this registry hands out to new uploads.
func (r *Registry) ChunkSize() uint64 { return r.chunkSize }

// NewUpload creates a fresh SU using the registry's default timeout. See
// NewUploadWithTimeout for the explicit-timeout form (spec §4.3's
// new_upload takes timeout as a parameter).
func (r *Registry) NewUpload(name string, declaredSize uint64, expireDuration time.Duration, maxFilesize uint64) (*Session, error) {
	return r.NewUploadWithTimeout(name, declaredSize, expireDuration, maxFilesize, r.defaultTimeout)
}

// NewUploadWithTimeout creates a fresh SU: a new UUID, an empty staging
// file, and a deadline of now+timeout. maxFilesize is enforced here so
// callers never stage more than the server is willing to store.
func (r *Registry) NewUploadWithTimeout(name string, declaredSize uint64, expireDuration time.Duration, maxFilesize uint64, timeout time.Duration) (*Session, error) {
	if declaredSize > maxFilesize {
		return nil, errtypes.Validation("declared size exceeds max_filesize")
	}

	id := uuid.New()
	path := r.path(id)
	f, err := os.Create(path)
	if err != nil {
		return nil, errtypes.InternalWrap(err, "staging: create staging file")
	}
	f.Close()

	sess := &Session{
		ID:             id,
		Name:           name,
		DeclaredSize:   declaredSize,
		ExpireDuration: expireDuration,
		Path:           path,
		ChunkSize:      r.chunkSize,
		timeout:        timeout,
		receivedChunks: make(map[uint64]struct{}),
	}
	sess.touchDeadline()

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	return sess, nil
}

// Get returns the session for id, if present.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// remove drops id from the registry and deletes its staging file. A missing
// file is not an error: callers may race a previous removal.
func (r *Registry) remove(id uuid.UUID, path string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		// Best-effort: callers have no useful recovery here. The session is
		// already gone from the registry, so no later sweep revisits a file
		// left behind by a failed remove.
		_ = err
	}
}

// Cancel deletes the SU for id and its staging file. Idempotent: a missing
// id is not an error.
func (r *Registry) Cancel(id uuid.UUID) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	r.remove(id, sess.Path)
}

// RecordChunk enforces the chunk-write guards and writes data at the chunk's
// positional offset, holding the session's own lock so only one chunk write
// for this upload proceeds at a time while distinct uploads never contend.
// Any guard violation removes the SU and its staging file and returns a
// ProtocolViolation error (fatal to the upload per spec).
func (r *Registry) RecordChunk(id uuid.UUID, index uint64, data io.Reader) error {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return errtypes.NotFound("upload " + id.String())
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	offset := index * sess.ChunkSize
	if offset >= sess.DeclaredSize {
		r.remove(id, sess.Path)
		return errtypes.ProtocolViolation("chunk offset at or beyond declared size")
	}
	if _, already := sess.receivedChunks[index]; already {
		r.remove(id, sess.Path)
		return errtypes.ProtocolViolation("duplicate chunk index")
	}

	maxLen := sess.ChunkSize
	if offset+maxLen > sess.DeclaredSize {
		maxLen = sess.DeclaredSize - offset
	}

	f, err := os.OpenFile(sess.Path, os.O_WRONLY, 0o600)
	if err != nil {
		r.remove(id, sess.Path)
		return errtypes.InternalWrap(err, "staging: open staging file")
	}
	defer f.Close()

	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		r.remove(id, sess.Path)
		return errtypes.InternalWrap(err, "staging: seek staging file")
	}

	n, err := io.Copy(f, io.LimitReader(data, int64(maxLen)+1))
	if err != nil {
		r.remove(id, sess.Path)
		return errtypes.InternalWrap(err, "staging: write chunk")
	}
	if uint64(n) > maxLen || offset+uint64(n) > sess.DeclaredSize {
		r.remove(id, sess.Path)
		return errtypes.ProtocolViolation("chunk write exceeds declared size")
	}

	sess.receivedChunks[index] = struct{}{}
	sess.touchDeadline()
	return nil
}

// Promote hashes the staging file's contents, asks bs to promote or
// deduplicate it, and builds a fresh Entry via idx.InsertNew — retrying MMID
// generation on collision (I3). On any failure the SU is removed.
func (r *Registry) Promote(id uuid.UUID, bs *blobstore.Store, idx *metaindex.Index) (metaindex.Entry, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return metaindex.Entry{}, errtypes.NotFound("upload " + id.String())
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	f, err := os.Open(sess.Path)
	if err != nil {
		r.remove(id, sess.Path)
		return metaindex.Entry{}, errtypes.InternalWrap(err, "staging: open staging file for hashing")
	}
	h, err := contenthash.Sum(f)
	f.Close()
	if err != nil {
		r.remove(id, sess.Path)
		return metaindex.Entry{}, errtypes.InternalWrap(err, "staging: hash staging file")
	}

	mimeType, err := detectMime(sess.Path)
	if err != nil {
		r.remove(id, sess.Path)
		return metaindex.Entry{}, err
	}

	if _, err := bs.PutFromStaged(sess.Path, h); err != nil {
		r.remove(id, sess.Path)
		return metaindex.Entry{}, err
	}

	now := time.Now().UTC()
	entry, err := idx.InsertNew(func(m mmid.MMID) metaindex.Entry {
		return metaindex.Entry{
			MMID:       m,
			Name:       sess.Name,
			MimeType:   mimeType,
			Hash:       h,
			UploadTime: now,
			ExpiryTime: now.Add(sess.ExpireDuration),
		}
	})

	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	return entry, err
}

// NewStreamUpload is NewUpload plus initialization of the running hash state
// the WebSocket variant folds each frame into, avoiding a second read-back
// pass over the staging file at promotion time.
func (r *Registry) NewStreamUpload(name string, declaredSize uint64, expireDuration time.Duration, maxFilesize uint64) (*Session, error) {
	sess, err := r.NewUpload(name, declaredSize, expireDuration, maxFilesize)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	sess.hasher = contenthash.NewHasher()
	sess.mu.Unlock()
	return sess, nil
}

// AppendStreamFrame appends data to id's staging file, folds it into the
// running hash, and refreshes the deadline. It returns the cumulative number
// of bytes streamed so far. If that total would exceed maxAllowed, the SU is
// discarded and a ProtocolViolation error is returned — the caller (the
// WebSocket handler) must then close the socket abnormally.
func (r *Registry) AppendStreamFrame(id uuid.UUID, data []byte, maxAllowed uint64) (uint64, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return 0, errtypes.NotFound("upload " + id.String())
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.streamedBytes+uint64(len(data)) > maxAllowed {
		r.remove(id, sess.Path)
		return 0, errtypes.ProtocolViolation("streamed bytes exceed declared or max size")
	}

	f, err := os.OpenFile(sess.Path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		r.remove(id, sess.Path)
		return 0, errtypes.InternalWrap(err, "staging: open staging file for append")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		r.remove(id, sess.Path)
		return 0, errtypes.InternalWrap(err, "staging: write stream frame")
	}
	if err := f.Close(); err != nil {
		r.remove(id, sess.Path)
		return 0, errtypes.InternalWrap(err, "staging: close staging file")
	}

	sess.hasher.Write(data)
	sess.streamedBytes += uint64(len(data))
	sess.touchDeadline()
	return sess.streamedBytes, nil
}

// PromoteStreamed finalizes a streaming upload using the hash accumulated by
// AppendStreamFrame rather than re-reading the staging file, then behaves
// like Promote.
func (r *Registry) PromoteStreamed(id uuid.UUID, bs *blobstore.Store, idx *metaindex.Index) (metaindex.Entry, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return metaindex.Entry{}, errtypes.NotFound("upload " + id.String())
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	h := sess.hasher.Sum()

	mimeType, err := detectMime(sess.Path)
	if err != nil {
		r.remove(id, sess.Path)
		return metaindex.Entry{}, err
	}

	if _, err := bs.PutFromStaged(sess.Path, h); err != nil {
		r.remove(id, sess.Path)
		return metaindex.Entry{}, err
	}

	now := time.Now().UTC()
	entry, err := idx.InsertNew(func(m mmid.MMID) metaindex.Entry {
		return metaindex.Entry{
			MMID:       m,
			Name:       sess.Name,
			MimeType:   mimeType,
			Hash:       h,
			UploadTime: now,
			ExpiryTime: now.Add(sess.ExpireDuration),
		}
	})

	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	return entry, err
}

// TimeoutSweep removes every session whose deadline has passed, deleting
// its staging file. Best-effort: a missing file is not an error.
func (r *Registry) TimeoutSweep() int {
	now := time.Now()

	r.mu.Lock()
	var expired []*Session
	for id, sess := range r.sessions {
		if now.After(sess.Deadline) {
			expired = append(expired, sess)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, sess := range expired {
		if err := os.Remove(sess.Path); err != nil && !os.IsNotExist(err) {
			_ = err
		}
	}
	return len(expired)
}

// DeleteAll removes every in-progress session and its staging file. Called
// on graceful shutdown so no orphaned staging files survive a clean stop.
func (r *Registry) DeleteAll(log *zerolog.Logger) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, sess := range r.sessions {
		sessions = append(sessions, sess)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		if err := os.Remove(sess.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("upload", sess.ID.String()).Msg("staging: failed to remove staging file on shutdown")
		}
	}
}

// Len returns the number of in-progress sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// detectMime sniffs the MIME type from the file's content, never from its
// name or a client-declared header (spec §4.3 promote contract).
func detectMime(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errtypes.InternalWrap(err, "staging: open staging file for mime detection")
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", errtypes.InternalWrap(err, "staging: detect mime type")
	}
	return mt.String(), nil
}
