package bcp

import (
	"encoding/json"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// jsonParam is the reserved parameter name carrying a flattened JSON object.
const jsonParam = "json"

// Type hints recognised in front of a parameter value.
const (
	hintInt   = "int"
	hintFloat = "float"
	hintBool  = "bool"
	hintNone  = "NoneType"
)

// Codec turns single lines into messages and messages into wire bytes.
// Framing is done by the transport; Decode receives one line without its
// terminator and Encode must return a complete, terminated line.
type Codec interface {
	// Decode parses one line into a message.
	Decode(line string) (*Message, error)
	// Encode serializes a message for transmission.
	Encode(*Message) ([]byte, error)
}

// TextCodec is the BCP text codec.
type TextCodec struct{}

// Decode implements Codec.
func (TextCodec) Decode(line string) (*Message, error) {
	return ParseMessage(line)
}

// Encode implements Codec. The result is percent-encoded and ends with '\n'.
func (TextCodec) Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("cannot encode nil message")
	}
	return []byte(m.Format(true) + "\n"), nil
}

// ParseMessage parses a single BCP line of the form
// command?name=[hint:]value&name=[hint:]value.
func ParseMessage(line string) (*Message, error) {
	line = strings.TrimRight(line, "\r\n")

	rawCommand, rawParams, hasParams := strings.Cut(line, "?")
	command, err := url.PathUnescape(rawCommand)
	if err != nil {
		return nil, newParseError("invalid command encoding", line, err)
	}
	command = strings.ToLower(strings.TrimSpace(command))
	if command == "" {
		return nil, newParseError("empty command", line, nil)
	}

	m := &Message{command: command, params: make(map[string]any)}
	if !hasParams {
		return m, nil
	}

	for _, token := range strings.Split(rawParams, "&") {
		if token == "" {
			continue
		}

		rawName, rawValue, hasValue := strings.Cut(token, "=")
		name, err := url.PathUnescape(rawName)
		if err != nil {
			return nil, newParseError("invalid parameter name encoding", line, err)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		if !hasValue {
			m.set(name, nil)
			continue
		}

		if name == jsonParam {
			if err := m.mergeJSON(rawValue); err != nil {
				return nil, newParameterError(jsonParam, line, err)
			}
			continue
		}

		value, err := parseValue(rawValue)
		if err != nil {
			return nil, newParameterError(name, line, err)
		}
		m.set(name, value)
	}

	return m, nil
}

// mergeJSON unwraps the top-level fields of a json parameter into m,
// keeping the order they appear in.
func (m *Message) mergeJSON(rawValue string) error {
	text, err := url.PathUnescape(rawValue)
	if err != nil {
		return errors.Wrap(err, "invalid json encoding")
	}

	dec := json.NewDecoder(strings.NewReader(text))
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "invalid json")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("json parameter is not an object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "invalid json")
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return errors.Wrapf(err, "invalid json value for '%s'", key)
		}
		value, err := decodeJSON(string(raw))
		if err != nil {
			return err
		}
		m.set(key, value)
	}

	m.complex = true
	return nil
}

func parseValue(raw string) (any, error) {
	hint, rest, found := strings.Cut(raw, ":")
	if found {
		switch strings.ToLower(hint) {
		case hintInt:
			s, err := url.PathUnescape(rest)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			return n, errors.WithStack(err)
		case hintFloat:
			s, err := url.PathUnescape(rest)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			return f, errors.WithStack(err)
		case hintBool:
			s, err := url.PathUnescape(rest)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			b, err := strconv.ParseBool(strings.TrimSpace(s))
			return b, errors.WithStack(err)
		case strings.ToLower(hintNone):
			return nil, nil
		}
	}

	s, err := url.PathUnescape(raw)
	return s, errors.WithStack(err)
}

// Format serializes the message. When encode is true, names and values are
// percent-encoded for transmission; otherwise the display form is returned.
func (m *Message) Format(encode bool) string {
	var sb strings.Builder
	sb.WriteString(m.command)
	if len(m.names) == 0 {
		return sb.String()
	}

	sb.WriteByte('?')
	if m.complex {
		sb.WriteString(jsonParam)
		sb.WriteByte('=')
		sb.WriteString(escape(m.jsonObject(), encode))
		return sb.String()
	}

	for i, name := range m.names {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(escape(name, encode))
		sb.WriteByte('=')
		sb.WriteString(formatValue(m.params[name], encode))
	}
	return sb.String()
}

func formatValue(v any, encode bool) string {
	switch t := v.(type) {
	case nil:
		return hintNone + ":"
	case string:
		return escape(t, encode)
	case int64:
		return hintInt + ":" + strconv.FormatInt(t, 10)
	case float64:
		return hintFloat + ":" + strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return hintBool + ":True"
		}
		return hintBool + ":False"
	}
	return escape(rawText(v), encode)
}

// jsonObject renders the parameters as a JSON object in parameter order.
func (m *Message) jsonObject() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, name := range m.names {
		if i > 0 {
			sb.WriteByte(',')
		}
		key, _ := json.Marshal(name)
		sb.Write(key)
		sb.WriteByte(':')
		writeJSON(&sb, m.params[name])
	}
	sb.WriteByte('}')
	return sb.String()
}

// writeJSON renders v as JSON. Whole floats keep a fractional part so they
// decode as floats again.
func writeJSON(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case float64:
		switch {
		case math.IsNaN(t), math.IsInf(t, 0):
			sb.WriteString("null")
		case t == math.Trunc(t) && math.Abs(t) < 1e21:
			sb.WriteString(strconv.FormatFloat(t, 'f', 1, 64))
		default:
			sb.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			key, _ := json.Marshal(k)
			sb.Write(key)
			sb.WriteByte(':')
			writeJSON(sb, t[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSON(sb, e)
		}
		sb.WriteByte(']')
	default:
		data, err := json.Marshal(v)
		if err != nil {
			sb.WriteString("null")
			return
		}
		sb.Write(data)
	}
}

// escape percent-encodes everything outside the RFC 3986 unreserved set.
func escape(s string, encode bool) string {
	if !encode {
		return s
	}
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
