package extension

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reference names an extension plus optional constructor arguments. It is
// resolved lazily, on the member that applies it.
type Reference struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

// String renders the reference in the form ParseReferences accepts:
// name or name{"k":"v"}.
func (r Reference) String() string {
	if len(r.Args) == 0 {
		return r.Name
	}
	// sorted for stable output
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteByte('{')
	for i, k := range slices.Sorted(maps.Keys(r.Args)) {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(r.Args[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}

// FormatReferences joins references with commas.
func FormatReferences(refs []Reference) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// ParseReferences parses a comma separated list such as
//
//	com.example.A,com.example.B{"threshold":"10"}
//
// Commas inside braces or quotes do not split. An empty list ("", '' or "")
// yields no references.
func ParseReferences(s string) ([]Reference, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "''" || s == `""` {
		return nil, nil
	}
	parts, err := splitTopLevel(s)
	if err != nil {
		return nil, err
	}
	refs := make([]Reference, 0, len(parts))
	for _, p := range parts {
		r, err := parseReference(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, nil
}

func parseReference(s string) (Reference, error) {
	if s == "" {
		return Reference{}, fmt.Errorf("empty extension reference")
	}
	i := strings.IndexByte(s, '{')
	if i < 0 {
		return Reference{Name: s}, nil
	}
	name := strings.TrimSpace(s[:i])
	if name == "" {
		return Reference{}, fmt.Errorf("extension reference %q: missing name", s)
	}
	var args map[string]string
	if err := json.Unmarshal([]byte(s[i:]), &args); err != nil {
		return Reference{}, fmt.Errorf("extension reference %q: bad arguments: %w", s, err)
	}
	return Reference{Name: name, Args: args}, nil
}

func splitTopLevel(s string) ([]string, error) {
	var (
		parts []string
		depth int
		quote bool
		start int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case quote:
			if c == '\\' {
				i++
			} else if c == '"' {
				quote = false
			}
		case c == '"':
			quote = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced '}' in %q", s)
			}
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if depth != 0 || quote {
		return nil, fmt.Errorf("unterminated arguments in %q", s)
	}
	return append(parts, s[start:]), nil
}
