package sensor

import (
	"strconv"
	"strings"
)

// Scale converts a raw attribute value into a physical value:
// raw / Divisor * Factor + Offset.
type Scale struct {
	Divisor float64
	Factor  float64
	Offset  float64
}

// DefaultScale matches IIO attributes, which report milli-units.
var DefaultScale = Scale{Divisor: 1000, Factor: 1}

func (s Scale) Apply(raw float64) float64 {
	div := s.Divisor
	if div == 0 {
		div = 1
	}
	return raw/div*s.Factor + s.Offset
}

// Convert parses raw and applies the scale.
func (s Scale) Convert(raw string) float64 {
	return s.Apply(ParseRaw(raw))
}

// ParseRaw parses the leading decimal number of raw. Trailing bytes such as
// a newline are ignored and input without a leading number yields 0.
func ParseRaw(raw string) float64 {
	s := strings.TrimLeft(raw, " \t\r\n")
	end := numberPrefix(s)
	if end == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return v
}

func numberPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits+frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return 0
	}
	// exponent only counts when at least one digit follows it
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > j {
			i = k
		}
	}
	return i
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
