// Package mmid implements the 8-character opaque public handle ("MMID")
// clients use to refer to an uploaded file. Generation is grounded on the
// teacher's sethvargo/go-password dependency, the same library reva uses to
// mint random tokens; validation follows the aistore shortid.go idiom of a
// single predicate checked on both the generated and the client-supplied
// value.
package mmid

import (
	"github.com/sethvargo/go-password/password"
)

// Length is the fixed size of every MMID, per the data model invariant.
const Length = 8

// MMID is an opaque 8-character handle drawn from [A-Za-z0-9].
type MMID string

// alphabet is the full 62-character set every MMID position is drawn from.
const alphabet = password.LowerLetters + password.UpperLetters + password.Digits

// generator produces every character from alphabet instead of Generate's
// fixed letters/digits/symbols split: Generate(length, numDigits, ...) draws
// numDigits characters from the digit pool and the remaining length-numDigits
// from the letter pool, two disjoint draws that can never express a single
// flat alphabet. Configuring Digits as the full alphabet and asking for
// numDigits == Length (zero "letters") routes every position through that one
// pool instead.
var generator = func() *password.Generator {
	g, err := password.NewGenerator(&password.GeneratorInput{Digits: alphabet})
	if err != nil {
		panic(err)
	}
	return g
}()

// Generate mints a fresh random MMID. The result always satisfies Valid.
func Generate() (MMID, error) {
	s, err := generator.Generate(Length, Length, 0, true, true)
	if err != nil {
		return "", err
	}
	m := MMID(s)
	if !m.Valid() {
		// alphabet is a subset of [A-Za-z0-9] by construction, so this only
		// trips if a future dependency bump changes Generate's behavior.
		return Generate()
	}
	return m, nil
}

// Valid reports whether m has exactly Length characters, all drawn from
// [A-Za-z0-9].
func (m MMID) Valid() bool {
	if len(m) != Length {
		return false
	}
	for i := 0; i < len(m); i++ {
		c := m[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

func (m MMID) String() string { return string(m) }
