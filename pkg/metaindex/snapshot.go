package metaindex

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"

	"github.com/Dangoware/confetti-box/pkg/errtypes"
)

// compressionThreshold is the snapshot size above which the encoded index is
// run through zstd before hitting disk. Below it, the framing overhead isn't
// worth paying — most deployments will carry a handful of entries most of
// the time. This realizes spec §4.2's "optional length-framed compression".
const compressionThreshold = 64 * 1024

// zstdMagic tags an on-disk snapshot as zstd-compressed so Load can tell frames
// apart without guessing from content. A plain JSON snapshot always starts
// with '{' (0x7b), which never collides with this tag.
var zstdMagic = []byte{0x00, 'Z', 'S', 'T'}

// snapshotWire is the top-level persisted shape: a flat list of entries is
// sufficient to rebuild both `entries` and `refs` on load.
type snapshotWire struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

const snapshotVersion = 1

// Save serializes the index to path via the write-sibling/fsync/rename
// pattern: encode to "<path>.bkp", fsync it, then rename over path. This
// mirrors the teacher's atomic-replace metadata writes (decomposedfs uses
// lockedfile plus rename for the same reason: a reader must never observe a
// half-written file). An advisory flock on "<path>.lock" prevents two
// processes from racing a snapshot of the same index.
func (idx *Index) Save(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return errtypes.InternalWrap(err, "metaindex: acquire snapshot lock")
	}
	defer lock.Unlock()

	entries := idx.IterEntries()
	payload, err := json.Marshal(snapshotWire{Version: snapshotVersion, Entries: entries})
	if err != nil {
		return errtypes.InternalWrap(err, "metaindex: encode snapshot")
	}

	if len(payload) > compressionThreshold {
		var buf bytes.Buffer
		buf.Write(zstdMagic)
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return errtypes.InternalWrap(err, "metaindex: create compressor")
		}
		if _, err := zw.Write(payload); err != nil {
			zw.Close()
			return errtypes.InternalWrap(err, "metaindex: compress snapshot")
		}
		if err := zw.Close(); err != nil {
			return errtypes.InternalWrap(err, "metaindex: finalize compressed snapshot")
		}
		payload = buf.Bytes()
	}

	bkp := path + ".bkp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errtypes.InternalWrap(err, "metaindex: create index directory")
	}
	f, err := os.OpenFile(bkp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return errtypes.InternalWrap(err, "metaindex: open snapshot file")
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return errtypes.InternalWrap(err, "metaindex: write snapshot")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errtypes.InternalWrap(err, "metaindex: fsync snapshot")
	}
	if err := f.Close(); err != nil {
		return errtypes.InternalWrap(err, "metaindex: close snapshot")
	}
	if err := os.Rename(bkp, path); err != nil {
		return errtypes.InternalWrap(err, "metaindex: rename snapshot into place")
	}
	return nil
}

// Load reads an index previously written by Save. A missing file is not an
// error: the caller gets a fresh empty Index, which is saved to path right
// away, per spec §4.2 ("else initialized empty and saved"). A
// present-but-corrupt file is: the spec
// requires the process fail fast rather than silently starting empty and
// overwriting the operator's data on the next snapshot.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			idx := New()
			if err := idx.Save(path); err != nil {
				return nil, err
			}
			return idx, nil
		}
		return nil, errtypes.InternalWrap(err, "metaindex: open snapshot")
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, errtypes.InternalWrap(err, "metaindex: read snapshot")
	}

	payload := raw
	if bytes.HasPrefix(raw, zstdMagic) {
		zr, err := zstd.NewReader(bytes.NewReader(raw[len(zstdMagic):]))
		if err != nil {
			return nil, errtypes.InternalWrap(err, "metaindex: decompress snapshot")
		}
		defer zr.Close()
		payload, err = io.ReadAll(zr)
		if err != nil {
			return nil, errtypes.InternalWrap(err, "metaindex: decompress snapshot")
		}
	}

	var wire snapshotWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, errtypes.InternalWrap(err, "metaindex: decode snapshot (corrupt index file)")
	}

	idx := New()
	for _, e := range wire.Entries {
		idx.Insert(e)
	}
	return idx, nil
}
