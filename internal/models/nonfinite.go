package models

import (
	"bytes"
	"math"
)

// JSON has no literal for NaN or infinity. Non-finite metric values are
// stored as these strings and read back as floats.
const (
	nanString    = "NaN"
	posInfString = "Infinity"
	negInfString = "-Infinity"
)

func encodeFloat(v float64) any {
	switch {
	case math.IsNaN(v):
		return nanString
	case math.IsInf(v, 1):
		return posInfString
	case math.IsInf(v, -1):
		return negInfString
	}
	return v
}

func parseNonFinite(s string) (float64, bool) {
	switch s {
	case nanString:
		return math.NaN(), true
	case posInfString, "+Infinity":
		return math.Inf(1), true
	case negInfString:
		return math.Inf(-1), true
	}
	return 0, false
}

var nonFiniteTokens = [][]byte{[]byte(negInfString), []byte(posInfString), []byte(nanString)}

// QuoteNonFinite rewrites bare NaN, Infinity and -Infinity tokens, as written
// by Python's json module, into quoted strings so encoding/json accepts the
// document. Text inside JSON strings is left alone.
func QuoteNonFinite(data []byte) []byte {
	if !bytes.Contains(data, []byte("NaN")) && !bytes.Contains(data, []byte("Infinity")) {
		return data
	}

	out := make([]byte, 0, len(data)+16)
	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}

		matched := false
		for _, tok := range nonFiniteTokens {
			if bytes.HasPrefix(data[i:], tok) {
				out = append(out, '"')
				out = append(out, tok...)
				out = append(out, '"')
				i += len(tok) - 1
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, c)
		}
	}
	return out
}
