// Package reaper implements the periodic Reaper (RP): it deletes expired
// metadata-index entries, garbage-collects now-unreferenced blobs, and
// times out stale staged uploads. Grounded on go-file-explorer's
// StartCleanupTicker/CleanupExpired (ticker-plus-context-cancellation
// shape) and the teacher's GC-after-delete ordering in
// decomposedfs/revisions.go (DeleteRevision removes the blob only after its
// metadata reference is gone). The two sweeps run as sibling goroutines
// under one golang.org/x/sync/errgroup group, matching the teacher's
// convention of coordinating sibling background tasks through errgroup
// rather than hand-rolled WaitGroups.
package reaper

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dangoware/confetti-box/pkg/appctx"
	"github.com/Dangoware/confetti-box/pkg/blobstore"
	"github.com/Dangoware/confetti-box/pkg/metaindex"
	"github.com/Dangoware/confetti-box/pkg/staging"
)

// Reaper owns the two periodic sweeps.
type Reaper struct {
	idx      *metaindex.Index
	bs       *blobstore.Store
	cs       *staging.Registry
	dbPath   string
	miPeriod time.Duration
	csPeriod time.Duration
}

// New returns a Reaper sweeping idx/bs every miPeriod and cs every csPeriod,
// persisting idx to dbPath after each MI sweep.
func New(idx *metaindex.Index, bs *blobstore.Store, cs *staging.Registry, dbPath string, miPeriod, csPeriod time.Duration) *Reaper {
	return &Reaper{
		idx:      idx,
		bs:       bs,
		cs:       cs,
		dbPath:   dbPath,
		miPeriod: miPeriod,
		csPeriod: csPeriod,
	}
}

// Run drives both sweeps until ctx is cancelled, at which point it exits
// promptly between ticks and returns nil. It is meant to be passed to an
// errgroup.Group alongside the HTTP server's own shutdown-aware goroutine.
func (r *Reaper) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.runMISweeps(ctx)
	})
	g.Go(func() error {
		return r.runCSSweeps(ctx)
	})

	return g.Wait()
}

func (r *Reaper) runMISweeps(ctx context.Context) error {
	ticker := time.NewTicker(r.miPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.SweepMI(ctx)
		}
	}
}

func (r *Reaper) runCSSweeps(ctx context.Context) error {
	ticker := time.NewTicker(r.csPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.cs.TimeoutSweep()
		}
	}
}

// SweepMI performs one MI sweep-and-persist cycle: remove every expired
// entry, delete now-orphaned blobs, then snapshot the index. Each blob
// delete is logged and does not abort the rest of the sweep (spec §7:
// reaper logs and continues on any per-entry error).
func (r *Reaper) SweepMI(ctx context.Context) {
	now := time.Now().UTC()
	removed := r.idx.SweepExpired(func(e metaindex.Entry) bool { return e.Expired(now) })

	log := appctx.GetLogger(ctx)
	for _, re := range removed {
		if !re.WasLastReference {
			continue
		}
		if err := r.bs.Delete(ctx, re.Hash); err != nil {
			log.Warn().Err(err).Str("hash", re.Hash.String()).Msg("reaper: failed to delete orphaned blob")
		}
	}

	if len(removed) > 0 {
		log.Info().Int("count", len(removed)).Msg("reaper: swept expired entries")
	}

	if err := r.idx.Save(r.dbPath); err != nil {
		log.Error().Err(err).Msg("reaper: failed to persist index snapshot")
	}
}
