package transcend

import (
	"fmt"
	"strconv"
	"strings"
)

// Pattern is a byte signature where some positions match any byte.
type Pattern struct {
	data []int16 // -1 means wildcard
}

const wildcard = -1

// ParsePattern parses whitespace separated hex bytes. "??" or "?" stands for
// a byte that matches anything:
//
//	48 8B 05 ?? ?? ?? ?? 48 85 C0
func ParsePattern(s string) (Pattern, error) {
	fields := strings.Fields(s)
	p := Pattern{data: make([]int16, 0, len(fields))}

	for i, field := range fields {
		if field == "?" || field == "??" {
			p.data = append(p.data, wildcard)
			continue
		}

		if len(field) != 2 {
			return Pattern{}, fmt.Errorf("byte %d: %q is not a two digit hex byte", i, field)
		}
		b, err := strconv.ParseUint(field, 16, 8)
		if err != nil {
			return Pattern{}, fmt.Errorf("byte %d: %w", i, err)
		}
		p.data = append(p.data, int16(b))
	}

	return p, nil
}

// MustParsePattern is like ParsePattern but panics if s can't be parsed.
func MustParsePattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic("transcend: ParsePattern(" + strconv.Quote(s) + "): " + err.Error())
	}
	return p
}

// PatternFromBytes returns a pattern matching b exactly.
func PatternFromBytes(b []byte) Pattern {
	p := Pattern{data: make([]int16, len(b))}
	for i, c := range b {
		p.data[i] = int16(c)
	}
	return p
}

// MaskedPattern returns a pattern matching b where every byte equal to wild
// matches anything. Signatures dumped by other tools commonly use 0xFF or
// 0x00 this way.
func MaskedPattern(b []byte, wild byte) Pattern {
	p := PatternFromBytes(b)
	for i, c := range b {
		if c == wild {
			p.data[i] = wildcard
		}
	}
	return p
}

// Len returns the number of bytes the pattern spans.
func (p Pattern) Len() int {
	return len(p.data)
}

func (p Pattern) String() string {
	var sb strings.Builder
	for i, c := range p.data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if c == wildcard {
			sb.WriteString("??")
		} else {
			fmt.Fprintf(&sb, "%02X", c)
		}
	}
	return sb.String()
}

// matchAt reports whether p matches window, which must be at least p.Len()
// bytes long.
func (p Pattern) matchAt(window []byte) bool {
	for k, c := range p.data {
		if c != wildcard && byte(c) != window[k] {
			return false
		}
	}
	return true
}

// anchor returns the position and value of the first exact byte, or -1 for a
// pattern made only of wildcards.
func (p Pattern) anchor() (int, byte) {
	for k, c := range p.data {
		if c != wildcard {
			return k, byte(c)
		}
	}
	return -1, 0
}
