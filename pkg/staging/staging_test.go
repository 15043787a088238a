package staging_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dangoware/confetti-box/pkg/blobstore"
	"github.com/Dangoware/confetti-box/pkg/errtypes"
	"github.com/Dangoware/confetti-box/pkg/metaindex"
	"github.com/Dangoware/confetti-box/pkg/staging"
)

func newRegistry(t *testing.T, chunkSize uint64, timeout time.Duration) *staging.Registry {
	t.Helper()
	r, err := staging.New(t.TempDir(), chunkSize, timeout)
	require.NoError(t, err)
	return r
}

func TestNewUploadRejectsOversizedDeclaration(t *testing.T) {
	r := newRegistry(t, 1024, time.Minute)
	_, err := r.NewUpload("big.bin", 2048, time.Hour, 1024)
	assert.True(t, errtypes.IsValidation(err))
}

func TestRecordChunkOutOfOrderThenFinish(t *testing.T) {
	r := newRegistry(t, 4, time.Minute)
	sess, err := r.NewUpload("file.bin", 10, time.Hour, 1<<20)
	require.NoError(t, err)

	chunks := map[uint64]string{
		0: "AAAA",
		2: "CC",
		1: "BBBB",
	}
	for _, idx := range []uint64{0, 2, 1} {
		require.NoError(t, r.RecordChunk(sess.ID, idx, strings.NewReader(chunks[idx])))
	}

	data, err := os.ReadFile(sess.Path)
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBBCC", string(data))
}

func TestRecordChunkDuplicateIndexIsFatal(t *testing.T) {
	r := newRegistry(t, 4, time.Minute)
	sess, err := r.NewUpload("file.bin", 10, time.Hour, 1<<20)
	require.NoError(t, err)

	require.NoError(t, r.RecordChunk(sess.ID, 0, strings.NewReader("AAAA")))
	err = r.RecordChunk(sess.ID, 0, strings.NewReader("AAAA"))
	assert.True(t, errtypes.IsProtocolViolation(err))

	_, ok := r.Get(sess.ID)
	assert.False(t, ok, "session should be removed after protocol violation")
}

func TestRecordChunkOverrunIsFatal(t *testing.T) {
	r := newRegistry(t, 4, time.Minute)
	sess, err := r.NewUpload("file.bin", 10, time.Hour, 1<<20)
	require.NoError(t, err)

	err = r.RecordChunk(sess.ID, 0, strings.NewReader("AAAAAAAAAAA"))
	assert.True(t, errtypes.IsProtocolViolation(err))

	_, ok := r.Get(sess.ID)
	assert.False(t, ok)
	_, statErr := os.Stat(sess.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRecordChunkAtDeclaredSizeOffsetFails(t *testing.T) {
	r := newRegistry(t, 5, time.Minute)
	sess, err := r.NewUpload("file.bin", 10, time.Hour, 1<<20)
	require.NoError(t, err)

	// chunk index 2 starts at offset 10, equal to declared_size.
	err = r.RecordChunk(sess.ID, 2, strings.NewReader(""))
	assert.True(t, errtypes.IsProtocolViolation(err))
}

func TestPromoteBuildsEntryAndClearsSession(t *testing.T) {
	r := newRegistry(t, 4, time.Minute)
	bs, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	idx := metaindex.New()

	sess, err := r.NewUpload("hello.txt", 6, time.Minute, 1<<20)
	require.NoError(t, err)
	require.NoError(t, r.RecordChunk(sess.ID, 0, strings.NewReader("hello\n")))

	entry, err := r.Promote(sess.ID, bs, idx)
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", entry.Name)
	assert.NotEmpty(t, entry.MMID)

	_, ok := r.Get(sess.ID)
	assert.False(t, ok)

	got, ok := idx.Get(entry.MMID)
	require.True(t, ok)
	assert.Equal(t, entry.Hash, got.Hash)
}

func TestCancelIsIdempotent(t *testing.T) {
	r := newRegistry(t, 4, time.Minute)
	sess, err := r.NewUpload("file.bin", 10, time.Hour, 1<<20)
	require.NoError(t, err)

	r.Cancel(sess.ID)
	_, ok := r.Get(sess.ID)
	assert.False(t, ok)

	r.Cancel(sess.ID) // second cancel must not panic
}

func TestTimeoutSweepRemovesExpiredSessions(t *testing.T) {
	r := newRegistry(t, 4, -time.Second) // deadlines immediately in the past
	sess, err := r.NewUpload("file.bin", 10, time.Hour, 1<<20)
	require.NoError(t, err)

	removed := r.TimeoutSweep()
	assert.Equal(t, 1, removed)

	_, ok := r.Get(sess.ID)
	assert.False(t, ok)
	_, statErr := os.Stat(sess.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStreamingUploadAccumulatesHashAndProgress(t *testing.T) {
	r := newRegistry(t, 4, time.Minute)
	bs, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	idx := metaindex.New()

	sess, err := r.NewStreamUpload("stream.bin", 5000, time.Minute, 1<<20)
	require.NoError(t, err)

	part1 := bytes.Repeat([]byte{0xAB}, 2000)
	total, err := r.AppendStreamFrame(sess.ID, part1, 5000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), total)

	part2 := bytes.Repeat([]byte{0xCD}, 3000)
	total, err = r.AppendStreamFrame(sess.ID, part2, 5000)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), total)

	entry, err := r.PromoteStreamed(sess.ID, bs, idx)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(bs.Dir(), entry.Hash.String()))
	require.NoError(t, err)
	assert.Equal(t, append(part1, part2...), data)
}

func TestDeleteAllRemovesEveryStagingFile(t *testing.T) {
	r := newRegistry(t, 4, time.Minute)
	sess1, err := r.NewUpload("a.bin", 10, time.Hour, 1<<20)
	require.NoError(t, err)
	sess2, err := r.NewUpload("b.bin", 10, time.Hour, 1<<20)
	require.NoError(t, err)

	log := zerolog.Nop()
	r.DeleteAll(&log)

	assert.Equal(t, 0, r.Len())
	_, err = os.Stat(sess1.Path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(sess2.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestStreamingUploadOverrunIsFatal(t *testing.T) {
	r := newRegistry(t, 4, time.Minute)
	sess, err := r.NewStreamUpload("stream.bin", 10, time.Minute, 10)
	require.NoError(t, err)

	_, err = r.AppendStreamFrame(sess.ID, bytes.Repeat([]byte{1}, 11), 10)
	assert.True(t, errtypes.IsProtocolViolation(err))

	_, ok := r.Get(sess.ID)
	assert.False(t, ok)
}
