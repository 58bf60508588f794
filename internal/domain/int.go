package domain

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"lukechampine.com/uint128"
)

// Int is an unsigned 128-bit integer wide enough for any IPv4 or IPv6 address.
// It encodes to JSON as a bare decimal number.
type Int struct {
	uint128.Uint128
}

// IntFrom64 widens v to an Int.
func IntFrom64(v uint64) Int {
	return Int{uint128.From64(v)}
}

// IntFromBytes interprets b (at most 16 bytes) as a big-endian unsigned integer.
func IntFromBytes(b []byte) Int {
	if len(b) > 16 {
		b = b[len(b)-16:]
	}
	var buf [16]byte
	copy(buf[16-len(b):], b)
	return Int{uint128.FromBytesBE(buf[:])}
}

// ParseInt parses a base-10 unsigned integer. Surrounding whitespace, a
// leading '+' and single '_' separators between digits are accepted; negative
// values and values wider than 128 bits are rejected.
func ParseInt(raw string) (Int, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return Int{}, fmt.Errorf("parse int %q: empty", raw)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' && i > 0 && i < len(s)-1 && isDigit(s[i-1]) && isDigit(s[i+1]) {
			continue
		}
		if !isDigit(c) {
			return Int{}, fmt.Errorf("parse int %q: invalid character %q", raw, c)
		}
	}
	s = strings.ReplaceAll(s, "_", "")
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Int{}, fmt.Errorf("parse int %q: invalid syntax", raw)
	}
	if n.BitLen() > 128 {
		return Int{}, fmt.Errorf("parse int %q: exceeds 128 bits", raw)
	}
	return Int{uint128.FromBig(n)}, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Less reports whether i sorts before o.
func (i Int) Less(o Int) bool {
	return i.Cmp(o.Uint128) < 0
}

func (i Int) String() string {
	return i.Uint128.String()
}

func (i Int) MarshalJSON() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	parsed, err := ParseInt(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
