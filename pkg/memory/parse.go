package memory

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/retain/pkg/priority"
)

const frontMatterDelimiter = "---"

// Parse deserializes a raw content file into a Memory.
//
// The metadata block is `key: value` lines between --- delimiters, with
// indented `- item` lines for list values. A file with no metadata block (or
// an unclosed one) is treated as pure body. Within the block, comments,
// quoted values, and boolean literals are tolerated; numeric-looking values
// that fail strict parsing stay strings and land in Extra. A malformed
// metadata block is a parse failure and propagates.
func Parse(raw []byte) (*Memory, error) {
	s := string(raw)
	if !strings.HasPrefix(s, frontMatterDelimiter+"\n") {
		return bodyOnly(s), nil
	}
	rest := s[len(frontMatterDelimiter)+1:]
	idx := strings.Index(rest, "\n"+frontMatterDelimiter)
	if idx == -1 {
		return bodyOnly(s), nil
	}
	yamlBlock := rest[:idx]
	body := rest[idx+len("\n"+frontMatterDelimiter):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}

	var fields map[string]any
	if err := yaml.Unmarshal([]byte(yamlBlock), &fields); err != nil {
		return nil, fmt.Errorf("memory: front-matter parse error: %w", err)
	}

	m := bodyOnly(body)
	for key, value := range fields {
		switch key {
		case "id":
			m.ID, _ = scalarString(value)
		case "topic":
			m.Topic, _ = scalarString(value)
		case "tags":
			m.Tags = stringList(value)
		case "phase":
			if n, ok := intValue(value); ok {
				m.Phase = n
			} else {
				putExtra(m, key, value)
			}
		case "difficulty":
			if f, ok := floatValue(value); ok {
				m.Difficulty = f
			} else {
				putExtra(m, key, value)
			}
		case "created_at":
			if ts, ok := timeValue(value); ok {
				m.CreatedAt = ts
			} else {
				putExtra(m, key, value)
			}
		case "created_session":
			if n, ok := intValue(value); ok {
				m.CreatedSession = n
			} else {
				putExtra(m, key, value)
			}
		default:
			putExtra(m, key, value)
		}
	}
	return m, nil
}

func bodyOnly(body string) *Memory {
	return &Memory{
		Content:    strings.TrimSpace(body),
		Difficulty: priority.DefaultDifficulty,
	}
}

// putExtra keeps an unrecognized (or unparsable) scalar as a string.
// Non-scalar values are dropped.
func putExtra(m *Memory, key string, value any) {
	s, ok := scalarString(value)
	if !ok {
		return
	}
	if m.Extra == nil {
		m.Extra = make(map[string]string)
	}
	m.Extra[key] = s
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(t), true
	case time.Time:
		return t.Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := scalarString(item); ok {
			out = append(out, s)
		}
	}
	return out
}

func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}

func floatValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// Serialize renders a Memory back to its on-disk byte representation, with
// the metadata fields in a fixed order and passthrough keys after them.
func Serialize(m *Memory) []byte {
	var sb strings.Builder
	sb.WriteString(frontMatterDelimiter + "\n")

	writeScalar(&sb, "id", quote(m.ID))
	writeScalar(&sb, "topic", quote(m.Topic))
	if len(m.Tags) == 0 {
		writeScalar(&sb, "tags", "[]")
	} else {
		sb.WriteString("tags:\n")
		for _, tag := range m.Tags {
			sb.WriteString("  - " + quote(tag) + "\n")
		}
	}
	writeScalar(&sb, "phase", strconv.Itoa(m.Phase))
	writeScalar(&sb, "difficulty", strconv.FormatFloat(m.Difficulty, 'g', -1, 64))
	writeScalar(&sb, "created_at", quote(m.CreatedAt.UTC().Format(time.RFC3339Nano)))
	writeScalar(&sb, "created_session", strconv.Itoa(m.CreatedSession))

	extraKeys := make([]string, 0, len(m.Extra))
	for key := range m.Extra {
		extraKeys = append(extraKeys, key)
	}
	sort.Strings(extraKeys)
	for _, key := range extraKeys {
		writeScalar(&sb, key, quote(m.Extra[key]))
	}

	sb.WriteString(frontMatterDelimiter + "\n\n")
	sb.WriteString(m.Content)
	sb.WriteString("\n")
	return []byte(sb.String())
}

func writeScalar(sb *strings.Builder, key, rendered string) {
	sb.WriteString(key + ": " + rendered + "\n")
}

// quote renders a double-quoted scalar. Go escaping is a subset of YAML
// double-quote escaping, so the result parses back unchanged.
func quote(s string) string {
	return strconv.Quote(s)
}
