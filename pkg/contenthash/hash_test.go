package contenthash_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dangoware/confetti-box/pkg/contenthash"
)

func TestSumAndParseRoundTrip(t *testing.T) {
	h, err := contenthash.Sum(strings.NewReader("hello\n"))
	require.NoError(t, err)

	s := h.String()
	assert.Len(t, s, contenthash.Size*2)

	parsed, err := contenthash.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestSumIsDeterministic(t *testing.T) {
	a, err := contenthash.Sum(bytes.NewReader([]byte("the same bytes")))
	require.NoError(t, err)
	b, err := contenthash.Sum(bytes.NewReader([]byte("the same bytes")))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHasherMatchesSum(t *testing.T) {
	data := []byte("streamed in two writes")
	want, err := contenthash.Sum(bytes.NewReader(data))
	require.NoError(t, err)

	h := contenthash.NewHasher()
	_, _ = h.Write(data[:10])
	_, _ = h.Write(data[10:])
	assert.Equal(t, want, h.Sum())
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := contenthash.Parse("not-hex")
	assert.Error(t, err)

	_, err = contenthash.Parse("ab")
	assert.Error(t, err)
}
