// Package codec implements the deterministic, content-addressable JSON
// encoding used for every artifact in the pipeline: sorted object keys, NFC
// normalized strings, exact integers, shortest round-tripping floats, and no
// insignificant whitespace. Two semantically equal inputs — differing only
// in key order or Unicode composition — always produce byte-identical
// output, which is what makes `sha256(canonical(artifact))` a stable
// content address.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrNonFinite is returned when a value to canonicalize contains NaN or Inf.
var ErrNonFinite = fmt.Errorf("codec: NaN and Infinity are not permitted in canonical payloads")

// ToGenericMap round-trips obj through encoding/json to obtain a
// map[string]any / []any tree with json.Number for every numeric leaf, which
// Canonicalize can then walk without losing integer-vs-float distinctions.
func ToGenericMap(obj any) (any, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal intermediate: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("codec: decode intermediate: %w", err)
	}
	return v, nil
}

// FromJSON decodes raw JSON bytes into a map[string]any / []any tree with
// json.Number for every numeric leaf, suitable for passing straight to
// Canonicalize or ComputeArtifactID without losing integer-vs-float
// distinctions.
func FromJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("codec: decode json: %w", err)
	}
	return v, nil
}

// Canonicalize returns the canonical JSON bytes for v. v should be a tree of
// nil, bool, json.Number, string, []any and map[string]any — exactly what
// ToGenericMap produces. Passing raw structs works too; Canonicalize calls
// ToGenericMap internally when it encounters a type it does not recognise.
func Canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		return writeCanonicalNumber(buf, val)
	case int:
		buf.WriteString(strconv.Itoa(val))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return ErrNonFinite
		}
		return writeCanonicalNumber(buf, json.Number(strconv.FormatFloat(val, 'g', -1, 64)))
	case string:
		writeCanonicalString(buf, val)
		return nil
	case []string:
		anys := make([]any, len(val))
		for i, s := range val {
			anys[i] = s
		}
		return writeCanonical(buf, anys)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		generic, err := ToGenericMap(v)
		if err != nil {
			return err
		}
		return writeCanonical(buf, generic)
	}
}

// writeCanonicalNumber prints integers exactly and finite floats using the
// shortest decimal representation that round-trips, per RFC 8785 §3.2.3.
func writeCanonicalNumber(buf *bytes.Buffer, n json.Number) error {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		// Pure integer lexeme: normalise "-0" to "0", strip a leading "+".
		s = strings.TrimPrefix(s, "+")
		if s == "-0" {
			s = "0"
		}
		buf.WriteString(s)
		return nil
	}

	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("codec: invalid number %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNonFinite
	}
	if f == 0 {
		buf.WriteString("0")
		return nil
	}

	out := strconv.FormatFloat(f, 'g', -1, 64)
	out = normalizeExponent(out)
	buf.WriteString(out)
	return nil
}

// normalizeExponent rewrites Go's "1e+10" / "1e-07" exponent spelling into
// the lower-case, no-leading-zero, no-plus-sign form canonical JSON expects.
func normalizeExponent(s string) string {
	idx := strings.IndexAny(s, "eE")
	if idx < 0 {
		return s
	}
	mantissa, exp := s[:idx], s[idx+1:]
	neg := strings.HasPrefix(exp, "-")
	exp = strings.TrimPrefix(strings.TrimPrefix(exp, "+"), "-")
	exp = strings.TrimLeft(exp, "0")
	if exp == "" {
		exp = "0"
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return mantissa + "e" + sign + exp
}

// writeCanonicalString normalizes s to NFC and writes it as a quoted JSON
// string, escaping only what JSON requires (quote, backslash, control
// characters) and leaving every non-ASCII byte untouched.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	normalized := norm.NFC.String(s)
	buf.WriteByte('"')
	for _, r := range normalized {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
