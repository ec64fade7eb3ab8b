package changes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"setgen/internal/cards"
)

// Second lane seed; two independent 64-bit digests form a 128-bit hash.
const hashSeed = 0x9E3779B97F4A7C15

// ComputeHash returns a 32-hex-digit digest of the canonical serialization of entity.
// Map keys are sorted, so semantically identical values always hash identically.
func ComputeHash(entity any) (string, error) {
	canonical, err := Canonical(entity)
	if err != nil {
		return "", err
	}
	return digest(canonical), nil
}

// Canonical serializes entity as JSON with sorted object keys.
func Canonical(entity any) ([]byte, error) {
	normalized, err := normalizeValue(entity)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(normalized); err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func digest(data []byte) string {
	lo := xxhash.Sum64(data)
	h := xxhash.NewWithSeed(hashSeed)
	_, _ = h.Write(data)
	return fmt.Sprintf("%016x%016x", h.Sum64(), lo)
}

// normalizeValue converts YAML-decoded values into JSON-encodable ones.
// encoding/json already sorts map[string]any keys.
func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			n, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			n, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			n, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return v, nil
	}
}

// RecordHash hashes the language-specific view of a record: its base fields
// plus the translation for lang, if any.
func RecordHash(rec cards.CardRecord, lang string) (string, error) {
	view := map[string]any{
		"id":      rec.ID,
		"set":     rec.SetID,
		"name":    rec.Name,
		"scratch": rec.Scratch,
		"fields":  rec.Fields,
	}
	if tr, ok := rec.Translations[lang]; ok {
		view["translation"] = tr
	}
	hash, err := ComputeHash(view)
	if err != nil {
		return "", fmt.Errorf("hash card %s: %w", rec.ID, err)
	}
	return hash, nil
}

// RollUp combines per-record hashes with the set identity and the enabled
// output kinds into the set-level hash for one language.
func RollUp(set cards.CardSet, lang string, records map[string]string, kinds []string) string {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sortedKinds := append([]string(nil), kinds...)
	sort.Strings(sortedKinds)

	codes := make([]string, 0, len(set.Codes))
	for k, v := range set.Codes {
		codes = append(codes, k+"="+v)
	}
	sort.Strings(codes)

	var b strings.Builder
	fmt.Fprintf(&b, "set:%s\nname:%s\nlang:%s\ncodes:%s\nkinds:%s\n",
		set.ID, set.Name, lang, strings.Join(codes, ","), strings.Join(sortedKinds, ","))
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte(':')
		b.WriteString(records[id])
		b.WriteByte('\n')
	}
	return digest([]byte(b.String()))
}

// Diff compares a previous baseline with freshly computed hashes. It is pure:
// unchanged ∪ changed = keys(next), removed = keys(prev) − keys(next). All
// slices are sorted.
func Diff(prev, next map[string]string) (unchanged, changed, removed []string) {
	unchanged = []string{}
	changed = []string{}
	removed = []string{}
	for id, hash := range next {
		if old, ok := prev[id]; ok && old == hash {
			unchanged = append(unchanged, id)
		} else {
			changed = append(changed, id)
		}
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(unchanged)
	sort.Strings(changed)
	sort.Strings(removed)
	return unchanged, changed, removed
}
