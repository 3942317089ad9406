package privacy

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Anonymize reduces a raw lab record to the allow-listed tests and the
// sample date. Only items inside the top-level "tests" array are read; every
// other field of the record is ignored, whatever its name. The function is
// total: malformed input yields an empty or partial payload.
func Anonymize(raw any) Payload {
	record := asObject(raw)

	out := Payload{Tests: []TestEntry{}}
	if record == nil {
		return out
	}

	// Without a tests array the record carries nothing usable, date included.
	items, ok := record["tests"].([]any)
	if !ok {
		return out
	}
	if sd, ok := record["sample_date"]; ok {
		out.SampleDate = toText(sd)
	}

	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, ok := entry["name"].(string)
		if !ok {
			continue
		}
		tn := TestName(strings.TrimSpace(name))
		if !tn.Valid() {
			continue
		}
		out.Tests = append(out.Tests, TestEntry{
			Name:      tn,
			Value:     toValue(entry["value"]),
			Unit:      toText(entry["unit"]),
			Reference: toText(entry["reference"]),
		})
	}

	return out
}

// AnonymizeJSON decodes a stored record and anonymizes it. Undecodable input
// yields an empty payload.
func AnonymizeJSON(data []byte) Payload {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Payload{Tests: []TestEntry{}}
	}
	return Anonymize(raw)
}

// Dropped returns how many entries of the raw tests array did not survive.
func Dropped(raw any, p Payload) int {
	record := asObject(raw)
	if record == nil {
		return 0
	}
	items, ok := record["tests"].([]any)
	if !ok {
		return 0
	}
	return len(items) - len(p.Tests)
}

func asObject(raw any) map[string]any {
	switch x := raw.(type) {
	case map[string]any:
		return x
	case Payload:
		return payloadObject(x)
	case *Payload:
		if x == nil {
			return nil
		}
		return payloadObject(*x)
	case json.RawMessage:
		return decodeObject(x)
	case []byte:
		return decodeObject(x)
	default:
		return nil
	}
}

func payloadObject(p Payload) map[string]any {
	data, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return decodeObject(data)
}

func decodeObject(data []byte) map[string]any {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil
	}
	return m
}
