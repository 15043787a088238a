package mmid_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dangoware/confetti-box/pkg/mmid"
)

var alphanumeric = regexp.MustCompile(`^[A-Za-z0-9]{8}$`)

func TestGenerate(t *testing.T) {
	seen := make(map[mmid.MMID]struct{})
	for i := 0; i < 500; i++ {
		m, err := mmid.Generate()
		require.NoError(t, err)

		assert.True(t, m.Valid())
		assert.Regexp(t, alphanumeric, m.String())
		assert.Len(t, m.String(), mmid.Length)

		seen[m] = struct{}{}
	}
	// Collision probability at this sample size is negligible; a collision
	// here would indicate a broken generator rather than bad luck.
	assert.Len(t, seen, 500)
}

func TestValid(t *testing.T) {
	cases := []struct {
		name string
		in   mmid.MMID
		want bool
	}{
		{"well formed", "xNLF6ogx", true},
		{"too short", "abc", false},
		{"too long", "ABCDEFGHI", false},
		{"symbol", "ABCDEFG!", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.Valid())
		})
	}
}
