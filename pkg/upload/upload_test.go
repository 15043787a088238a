package upload_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dangoware/confetti-box/internal/config"
	"github.com/Dangoware/confetti-box/pkg/blobstore"
	"github.com/Dangoware/confetti-box/pkg/errtypes"
	"github.com/Dangoware/confetti-box/pkg/metaindex"
	"github.com/Dangoware/confetti-box/pkg/staging"
	"github.com/Dangoware/confetti-box/pkg/upload"
)

func newService(t *testing.T) *upload.Service {
	t.Helper()
	cs, err := staging.New(t.TempDir(), 4, time.Minute)
	require.NoError(t, err)
	bs, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	idx := metaindex.New()
	cfg := config.Default(filepath.Join(t.TempDir(), "settings.toml"))
	cfg.MaxFilesize = 1 << 20
	return upload.New(cs, bs, idx, cfg)
}

func TestStartChunkedRejectsOversizedDeclaration(t *testing.T) {
	svc := newService(t)
	_, err := svc.StartChunked("big.bin", 2<<20, time.Hour)
	assert.True(t, errtypes.IsValidation(err))
}

func TestStartChunkedRejectsEmptyName(t *testing.T) {
	svc := newService(t)
	_, err := svc.StartChunked("", 10, time.Hour)
	assert.True(t, errtypes.IsValidation(err))
}

func TestStartChunkedRejectsDisallowedDuration(t *testing.T) {
	svc := newService(t)
	_, err := svc.StartChunked("file.bin", 10, 365*24*time.Hour)
	assert.True(t, errtypes.IsValidation(err))
}

func TestChunkedUploadFullLifecycle(t *testing.T) {
	svc := newService(t)

	start, err := svc.StartChunked("hello.txt", 6, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), start.ChunkSize)

	require.NoError(t, svc.ContinueChunked(start.UUID, 0, strings.NewReader("hell")))
	require.NoError(t, svc.ContinueChunked(start.UUID, 1, strings.NewReader("o\n")))

	entry, err := svc.FinishChunked(start.UUID)
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", entry.Name)
}

func TestChunkedUploadUnknownUUIDAfterOverrun(t *testing.T) {
	svc := newService(t)

	start, err := svc.StartChunked("file.bin", 4, time.Hour)
	require.NoError(t, err)

	err = svc.ContinueChunked(start.UUID, 0, strings.NewReader("AAAAA"))
	assert.True(t, errtypes.IsProtocolViolation(err))

	err = svc.ContinueChunked(start.UUID, 1, strings.NewReader("B"))
	assert.True(t, errtypes.IsNotFound(err), "subsequent continue on a discarded upload must report unknown UUID")
}

func TestCancelChunkedDiscardsUpload(t *testing.T) {
	svc := newService(t)
	start, err := svc.StartChunked("file.bin", 4, time.Hour)
	require.NoError(t, err)

	svc.CancelChunked(start.UUID)

	err = svc.ContinueChunked(start.UUID, 0, strings.NewReader("AAAA"))
	assert.True(t, errtypes.IsNotFound(err))
}
