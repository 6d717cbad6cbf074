package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

var ErrUnknownSymbol = errors.New("unknown code symbol")

// Codebook maps the letters a user types to login code digits. Users send
// the code as letters because the messenger invalidates codes forwarded in
// plain digits.
type Codebook map[rune]string

// DefaultCodebook is a..i -> 1..9 and j -> 0.
func DefaultCodebook() Codebook {
	cb := Codebook{'j': "0"}
	for i, r := range "abcdefghi" {
		cb[r] = string(rune('1' + i))
	}
	return cb
}

// CodebookFrom builds a codebook from config, falling back to the default
// when m is empty.
func CodebookFrom(m map[string]string) (Codebook, error) {
	if len(m) == 0 {
		return DefaultCodebook(), nil
	}
	cb := Codebook{}
	for k, v := range m {
		rs := []rune(strings.ToLower(k))
		if len(rs) != 1 {
			return nil, fmt.Errorf("codebook key %q must be one letter", k)
		}
		if len(v) != 1 || v[0] < '0' || v[0] > '9' {
			return nil, fmt.Errorf("codebook value %q for %q must be one digit", v, k)
		}
		cb[rs[0]] = v
	}
	return cb, nil
}

// Decode maps every symbol of s to its digits. Case and whitespace are
// ignored.
func (cb Codebook) Decode(s string) (string, error) {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		d, ok := cb[unicode.ToLower(r)]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownSymbol, r)
		}
		b.WriteString(d)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: empty code", ErrUnknownSymbol)
	}
	return b.String(), nil
}

// Legend renders the table for the instructions screen, e.g. "a=1 b=2".
func (cb Codebook) Legend() string {
	keys := make([]rune, 0, len(cb))
	for r := range cb {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	parts := make([]string, 0, len(keys))
	for _, r := range keys {
		parts = append(parts, string(r)+"="+cb[r])
	}
	return strings.Join(parts, " ")
}
