// Package blobstore implements the content-addressed blob store (BS):
// a directory of files named by their content hash. It knows nothing of
// names, expiries, or reference counts — that bookkeeping lives in
// pkg/metaindex. Grounded on the teacher's pkg/storage/fs/posix (same-
// filesystem statfs check) and on the filesystem.BlobStore found in
// haukened-gone (rename-on-promote, delete-on-close-is-not-needed-here
// because readers just get an *os.File).
package blobstore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Dangoware/confetti-box/pkg/appctx"
	"github.com/Dangoware/confetti-box/pkg/contenthash"
	"github.com/Dangoware/confetti-box/pkg/errtypes"
)

// PromoteResult reports whether a staged file became the canonical blob or
// was discarded because an identical blob already existed.
type PromoteResult int

const (
	// Promoted means the staging file was moved into the store.
	Promoted PromoteResult = iota
	// Deduplicated means a blob with this hash already existed; the staging
	// file was removed.
	Deduplicated
)

// Store is the content-addressed blob directory.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errtypes.InternalWrap(err, "blobstore: create directory")
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(h contenthash.Hash) string {
	return filepath.Join(s.dir, h.String())
}

// PutFromStaged renames the file at stagingPath into the store under h, or
// deletes it if a blob under h already exists. Rename must be atomic, which
// requires staging and blob directories to share a filesystem; callers
// should verify that once at startup with SameFilesystem.
func (s *Store) PutFromStaged(stagingPath string, h contenthash.Hash) (PromoteResult, error) {
	dst := s.path(h)

	if _, err := os.Stat(dst); err == nil {
		// Blob already exists: the new entry dedups onto it.
		if err := os.Remove(stagingPath); err != nil && !os.IsNotExist(err) {
			return Deduplicated, errtypes.InternalWrap(err, "blobstore: remove staged duplicate")
		}
		return Deduplicated, nil
	} else if !os.IsNotExist(err) {
		return Promoted, errtypes.InternalWrap(err, "blobstore: stat existing blob")
	}

	if err := os.Rename(stagingPath, dst); err != nil {
		return Promoted, errtypes.InternalWrap(err, "blobstore: promote staged file")
	}
	return Promoted, nil
}

// Open opens the blob under h for streaming reads.
func (s *Store) Open(h contenthash.Hash) (*os.File, error) {
	f, err := os.Open(s.path(h))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errtypes.NotFound("blob " + h.String())
		}
		return nil, errtypes.InternalWrap(err, "blobstore: open blob")
	}
	return f, nil
}

// Size stats the blob under h and returns its size in bytes.
func (s *Store) Size(h contenthash.Hash) (int64, error) {
	fi, err := os.Stat(s.path(h))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errtypes.NotFound("blob " + h.String())
		}
		return 0, errtypes.InternalWrap(err, "blobstore: stat blob")
	}
	return fi.Size(), nil
}

// Delete removes the blob under h. A missing file is logged and treated as
// success: the reaper may legitimately race with an external removal, or
// with a previous sweep that already deleted it.
func (s *Store) Delete(ctx context.Context, h contenthash.Hash) error {
	if err := os.Remove(s.path(h)); err != nil {
		if os.IsNotExist(err) {
			appctx.GetLogger(ctx).Warn().Str("hash", h.String()).Msg("blobstore: blob already absent on delete")
			return nil
		}
		return errtypes.InternalWrap(err, "blobstore: delete blob")
	}
	return nil
}

// Dir returns the root directory of the store, for SameFilesystem checks
// performed by callers at startup.
func (s *Store) Dir() string { return s.dir }
