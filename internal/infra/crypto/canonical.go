package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Canonicalize renders v as canonical JSON in the form TUF uses for key ids
// and signatures: object keys sorted bytewise, no insignificant whitespace,
// only '"' and '\' escaped, integers only. The output is a hashing input and
// is not valid JSON when a string holds control characters.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return CanonicalizeJSON(raw)
}

func CanonicalizeJSON(input []byte) ([]byte, error) {
	return encode(input, false)
}

// Compact renders v with the same key order and layout as Canonicalize but
// escapes control characters, so the result is always valid JSON. Stored
// documents use this form.
func Compact(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return encode(raw, true)
}

func encode(input []byte, escapeControl bool) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := ensureEOF(dec); err != nil {
		return nil, err
	}

	w := &writer{escapeControl: escapeControl}
	if err := w.value(value); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

func ensureEOF(dec *json.Decoder) error {
	var extra any
	if err := dec.Decode(&extra); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return errors.New("invalid JSON: trailing data")
}

type writer struct {
	buf           bytes.Buffer
	escapeControl bool
}

func (w *writer) value(value any) error {
	switch v := value.(type) {
	case nil:
		w.buf.WriteString("null")
	case bool:
		w.buf.WriteString(strconv.FormatBool(v))
	case string:
		w.str(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return fmt.Errorf("canonical JSON permits integers only, got %s", v.String())
		}
		w.buf.WriteString(strconv.FormatInt(n, 10))
	case map[string]any:
		return w.object(v)
	case []any:
		w.buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				w.buf.WriteByte(',')
			}
			if err := w.value(item); err != nil {
				return err
			}
		}
		w.buf.WriteByte(']')
	default:
		return fmt.Errorf("unsupported JSON type %T", value)
	}
	return nil
}

func (w *writer) object(obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.str(k)
		w.buf.WriteByte(':')
		if err := w.value(obj[k]); err != nil {
			return err
		}
	}
	w.buf.WriteByte('}')
	return nil
}

func (w *writer) str(s string) {
	w.buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			w.buf.WriteByte('\\')
			w.buf.WriteByte(c)
		case c < 0x20 && w.escapeControl:
			w.control(c)
		default:
			w.buf.WriteByte(c)
		}
	}
	w.buf.WriteByte('"')
}

func (w *writer) control(c byte) {
	switch c {
	case '\b':
		w.buf.WriteString(`\b`)
	case '\f':
		w.buf.WriteString(`\f`)
	case '\n':
		w.buf.WriteString(`\n`)
	case '\r':
		w.buf.WriteString(`\r`)
	case '\t':
		w.buf.WriteString(`\t`)
	default:
		w.buf.WriteString(`\u00`)
		w.buf.WriteByte(hexLower[c>>4])
		w.buf.WriteByte(hexLower[c&0x0f])
	}
}

var hexLower = []byte("0123456789abcdef")
