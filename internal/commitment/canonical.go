// canonical.go - Canonical object construction and key-sorted compact serialization.

package commitment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// canonicalObject builds the commitment surface of p as a tree of map[string]any, []any,
// string, int64 and float64 values. p must already be validated.
func canonicalObject(p *StudyProtocol) map[string]any {
	obj := map[string]any{
		"condition":         codingObject(p.Condition),
		"treatment":         interventionObject(p.Treatment),
		"comparator":        nil,
		"inclusionCriteria": inclusionObject(p.InclusionCriteria),
		"primaryEndpoint":   stringFields("measure", p.PrimaryEndpoint.Measure, "timepoint", p.PrimaryEndpoint.Timepoint),
		"studyDesign":       designObject(p.Design),
		"enrollment":        enrollmentObject(p.Enrollment),
		"regulatory":        stringFields("irbNumber", p.Regulatory.IRBNumber, "trialRegistryId", p.Regulatory.TrialRegistryID),
	}
	if p.Comparator != nil {
		obj["comparator"] = interventionObject(p.Comparator)
	}
	return obj
}

func codingObject(c *Coding) map[string]any {
	return stringFields("code", c.Code, "system", c.System, "display", c.Display)
}

func interventionObject(i *Intervention) map[string]any {
	return stringFields("code", i.Code, "display", i.Display, "dosing", i.Dosing)
}

func inclusionObject(ic InclusionCriteria) map[string]any {
	obj := map[string]any{
		"ageRange": rangeObject(*ic.AgeRange),
		"gender":   ic.Gender,
	}
	for name, r := range ic.optionalRanges() {
		obj[name] = rangeObject(r)
	}
	return obj
}

func rangeObject(r NumericRange) map[string]any {
	return map[string]any{"min": r.Min, "max": r.Max}
}

func designObject(d Design) map[string]any {
	obj := stringFields("type", d.Type, "duration", d.Duration)
	obj["blinding"] = orDefault(d.Blinding, DefaultBlinding)
	obj["randomization"] = orDefault(d.Randomization, DefaultRandomization)
	return obj
}

func enrollmentObject(e Enrollment) map[string]any {
	obj := map[string]any{}
	if e.Target != nil {
		obj["target"] = *e.Target
	}
	if e.Actual != nil {
		obj["actual"] = *e.Actual
	}
	return obj
}

// stringFields builds an object from key/value pairs, omitting empty values.
func stringFields(kv ...string) map[string]any {
	obj := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			obj[kv[i]] = kv[i+1]
		}
	}
	return obj
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// marshalCanonical writes v with object keys sorted at every nesting level, no insignificant
// whitespace, and a single encoding per number and string.
func marshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case string:
		return writeString(buf, x)
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case float64:
		s, err := formatNumber(x)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case []any:
		buf.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unsupported value type %T", v)
	}
	return nil
}

// writeString emits a JSON string literal without HTML escaping.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("canonical: encode string: %w", err)
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// formatNumber renders f the way ECMAScript Number#toString does for finite values: shortest
// round-trip digits, integral values without a fraction, exponent form outside [1e-6, 1e21).
func formatNumber(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("canonical: non-finite number %v", f)
	}
	if f == 0 {
		return "0", nil
	}
	abs := math.Abs(f)
	format := byte('f')
	if abs < 1e-6 || abs >= 1e21 {
		format = 'e'
	}
	b := strconv.AppendFloat(nil, f, format, -1, 64)
	if format == 'e' {
		// e-07 -> e-7
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	return string(b), nil
}
