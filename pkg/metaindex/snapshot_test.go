package metaindex_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dangoware/confetti-box/pkg/metaindex"
	"github.com/Dangoware/confetti-box/pkg/mmid"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := metaindex.New()
	h := mustHash(t, "11111111111111111111111111111111")
	e := entryWithHash("round001", h)
	require.True(t, idx.Insert(e))

	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, idx.Save(path))

	loaded, err := metaindex.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())

	got, ok := loaded.Get("round001")
	require.True(t, ok)
	assert.True(t, e.UploadTime.Equal(got.UploadTime))
	assert.True(t, e.ExpiryTime.Equal(got.ExpiryTime))
	assert.Equal(t, e.Hash, got.Hash)
	assert.Equal(t, e.Name, got.Name)
	assert.Equal(t, e.MimeType, got.MimeType)
}

func TestLoadMissingFileReturnsEmptyIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	idx, err := metaindex.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
}

func TestLoadCorruptFileFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o600))

	_, err := metaindex.Load(path)
	assert.Error(t, err)
}

func TestSaveDoesNotLeaveBackupFileBehind(t *testing.T) {
	idx := metaindex.New()
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, idx.Save(path))

	_, err := os.Stat(path + ".bkp")
	assert.True(t, os.IsNotExist(err), "the .bkp staging file should be renamed away, not left behind")
}

func TestSaveOverwritesPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	idx1 := metaindex.New()
	h1 := mustHash(t, "22222222222222222222222222222222")
	require.True(t, idx1.Insert(entryWithHash("first001", h1)))
	require.NoError(t, idx1.Save(path))

	idx2 := metaindex.New()
	h2 := mustHash(t, "33333333333333333333333333333333")
	require.True(t, idx2.Insert(entryWithHash("second02", h2)))
	require.NoError(t, idx2.Save(path))

	loaded, err := metaindex.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	_, ok := loaded.Get("second02")
	assert.True(t, ok)
}

func TestSaveLoadLargeIndexUsesCompression(t *testing.T) {
	idx := metaindex.New()
	now := time.Unix(1_700_000_000, 0).UTC()
	for i := 0; i < 5000; i++ {
		s, err := randomLikeMMID(i)
		require.NoError(t, err)
		h := mustHash(t, s)
		e := entryWithHash(mmid.MMID(s), h)
		e.UploadTime = now
		e.ExpiryTime = now.Add(time.Hour)
		require.True(t, idx.Insert(e))
	}

	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, idx.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 'Z', 'S', 'T'}, raw[:4], "large snapshots should be zstd-framed")

	loaded, err := metaindex.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, loaded.Len())
}

// randomLikeMMID deterministically derives an 8-char alphanumeric string from
// i, avoiding the package's private mmid alphabet — this only needs to be a
// valid-looking distinct identifier for index storage, not a real MMID.
func randomLikeMMID(i int) (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	n := i + 1
	for j := 7; j >= 0; j-- {
		b[j] = alphabet[n%len(alphabet)]
		n /= len(alphabet)
	}
	return string(b), nil
}
