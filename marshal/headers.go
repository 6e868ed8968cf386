package marshal

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/reglet-dev/glass/domain/errors"
)

// headerNameSeparators are the characters never allowed in a header name.
const headerNameSeparators = `(),/:;<=>?@[\]{}`

// Header is a single header pair. Order and duplicates are preserved.
type Header struct {
	Name  string
	Value string
}

// ValidateHeader rejects names and values that are not valid UTF-8, names
// containing control characters or separators and values containing control characters.
func ValidateHeader(name, value string) error {
	if name == "" {
		return errors.NewBoundaryError(errors.KindInvalidHeader, "empty header name")
	}
	if !utf8.ValidString(name) {
		return errors.NewBoundaryError(errors.KindInvalidUTF8, "header name %q is not valid UTF-8", name)
	}
	if !utf8.ValidString(value) {
		return errors.NewBoundaryError(errors.KindInvalidUTF8, "value for header %q is not valid UTF-8", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) || strings.ContainsRune(headerNameSeparators, r) {
			return errors.NewBoundaryError(errors.KindInvalidHeader, "invalid header name %q", name)
		}
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return errors.NewBoundaryError(errors.KindInvalidHeader, "invalid value for header %q", name)
		}
	}
	return nil
}

// EncodeHeader serializes a pair as "name:value".
func EncodeHeader(h Header) (string, error) {
	if err := ValidateHeader(h.Name, h.Value); err != nil {
		return "", err
	}
	return h.Name + ":" + h.Value, nil
}

// DecodeHeader parses "name:value", splitting on the first ':'.
func DecodeHeader(s string) (Header, error) {
	name, value, ok := strings.Cut(s, ":")
	if !ok {
		return Header{}, errors.NewBoundaryError(errors.KindInvalidHeader, "invalid serialized header [%s]", s)
	}
	if err := ValidateHeader(name, value); err != nil {
		return Header{}, err
	}
	return Header{Name: name, Value: value}, nil
}

// EncodeHeaders serializes headers in order.
func EncodeHeaders(headers []Header) ([]string, error) {
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		s, err := EncodeHeader(h)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// DecodeHeaders parses serialized headers in order.
func DecodeHeaders(serialized []string) ([]Header, error) {
	out := make([]Header, 0, len(serialized))
	for _, s := range serialized {
		h, err := DecodeHeader(s)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// FormatHeaderBlock renders a header map as "name:value\n" lines with names sorted.
func FormatHeaderBlock(headers map[string][]string) string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		for _, v := range headers[name] {
			sb.WriteString(name)
			sb.WriteByte(':')
			sb.WriteString(v)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// ParseHeaderBlock parses "name:value" lines separated by '\n'. Blank lines are skipped.
func ParseHeaderBlock(block string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		h, err := DecodeHeader(line)
		if err != nil {
			return nil, err
		}
		out[h.Name] = append(out[h.Name], strings.TrimLeft(h.Value, " "))
	}
	return out, nil
}
