package reaper_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dangoware/confetti-box/pkg/blobstore"
	"github.com/Dangoware/confetti-box/pkg/contenthash"
	"github.com/Dangoware/confetti-box/pkg/metaindex"
	"github.com/Dangoware/confetti-box/pkg/reaper"
	"github.com/Dangoware/confetti-box/pkg/staging"
)

func putBlob(t *testing.T, bs *blobstore.Store, content string) contenthash.Hash {
	t.Helper()
	h, err := contenthash.Sum(strings.NewReader(content))
	require.NoError(t, err)

	p := filepath.Join(t.TempDir(), "staged")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	_, err = bs.PutFromStaged(p, h)
	require.NoError(t, err)
	return h
}

func TestSweepMIDeletesOrphanedBlobButKeepsSharedOne(t *testing.T) {
	idx := metaindex.New()
	bs, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	cs, err := staging.New(t.TempDir(), 4096, time.Minute)
	require.NoError(t, err)

	hOrphan := putBlob(t, bs, "only one ref")
	hShared := putBlob(t, bs, "shared content")

	now := time.Now().UTC()
	require.True(t, idx.Insert(metaindex.Entry{
		MMID: "expired1", Hash: hOrphan, UploadTime: now, ExpiryTime: now.Add(-time.Minute),
	}))
	require.True(t, idx.Insert(metaindex.Entry{
		MMID: "expired2", Hash: hShared, UploadTime: now, ExpiryTime: now.Add(-time.Minute),
	}))
	require.True(t, idx.Insert(metaindex.Entry{
		MMID: "survives", Hash: hShared, UploadTime: now, ExpiryTime: now.Add(time.Hour),
	}))

	dbPath := filepath.Join(t.TempDir(), "index.json")
	r := reaper.New(idx, bs, cs, dbPath, time.Hour, time.Hour)
	r.SweepMI(context.Background())

	_, err = bs.Open(hOrphan)
	assert.Error(t, err, "orphaned blob should be deleted")

	_, err = bs.Open(hShared)
	assert.NoError(t, err, "blob still referenced by a surviving entry must remain")

	_, ok := idx.Get("survives")
	assert.True(t, ok)

	loaded, err := metaindex.Load(dbPath)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestRunExitsPromptlyOnCancel(t *testing.T) {
	idx := metaindex.New()
	bs, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	cs, err := staging.New(t.TempDir(), 4096, time.Minute)
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "index.json")
	r := reaper.New(idx, bs, cs, dbPath, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not exit promptly after cancellation")
	}
}
