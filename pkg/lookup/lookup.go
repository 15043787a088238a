// Package lookup implements the read side (LK): resolve an MMID to its
// Entry and stream the underlying blob. Grounded on the teacher's
// PublicFileHandler (ocdav/publicfile.go), which resolves an opaque public
// token to a resource and streams it back on GET — simplified here to a
// direct MMID → Entry → blob chain with no WebDAV/PROPFIND surface.
package lookup

import (
	"os"

	"github.com/Dangoware/confetti-box/internal/config"
	"github.com/Dangoware/confetti-box/pkg/blobstore"
	"github.com/Dangoware/confetti-box/pkg/errtypes"
	"github.com/Dangoware/confetti-box/pkg/metaindex"
	"github.com/Dangoware/confetti-box/pkg/mmid"
)

// Service wires together the MI and BS for read-only resolution.
type Service struct {
	idx *metaindex.Index
	bs  *blobstore.Store
	cfg config.Settings
}

// New returns a Service backed by idx and bs, projecting capabilities from
// cfg.
func New(idx *metaindex.Index, bs *blobstore.Store, cfg config.Settings) *Service {
	return &Service{idx: idx, bs: bs, cfg: cfg}
}

// GetEntry resolves m to its Entry. A malformed m (wrong length or
// disallowed character) is indistinguishable from an unknown-but-well-formed
// one: both 404, per spec §8's lookup scenario — there is no partial-parse
// state to report 400 for.
func (s *Service) GetEntry(m mmid.MMID) (metaindex.Entry, error) {
	if !m.Valid() {
		return metaindex.Entry{}, errtypes.NotFound("malformed mmid")
	}
	e, ok := s.idx.Get(m)
	if !ok {
		return metaindex.Entry{}, errtypes.NotFound("mmid " + m.String())
	}
	return e, nil
}

// OpenBlob resolves m to its Entry and opens the underlying blob for
// streaming. A blob that vanished between index resolution and open (a
// race with the reaper) surfaces as NotFound, same as an unknown MMID —
// no special signaling is required beyond the missing-file response.
func (s *Service) OpenBlob(m mmid.MMID) (metaindex.Entry, *os.File, error) {
	e, err := s.GetEntry(m)
	if err != nil {
		return metaindex.Entry{}, nil, err
	}
	f, err := s.bs.Open(e.Hash)
	if err != nil {
		return metaindex.Entry{}, nil, err
	}
	return e, f, nil
}

// Capabilities is the pure projection of server configuration returned by
// GET /info.
type Capabilities struct {
	MaxFilesize      uint64  `json:"max_filesize"`
	MaxDuration      int64   `json:"max_duration"`
	DefaultDuration  int64   `json:"default_duration"`
	AllowedDurations []int64 `json:"allowed_durations"`
}

// ServerCapabilities projects the running configuration into the wire shape
// clients use to self-configure their upload requests.
func (s *Service) ServerCapabilities() Capabilities {
	return Capabilities{
		MaxFilesize:      s.cfg.MaxFilesize,
		MaxDuration:      s.cfg.Duration.Maximum,
		DefaultDuration:  s.cfg.Duration.Default,
		AllowedDurations: s.cfg.Duration.Allowed,
	}
}
