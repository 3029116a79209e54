package bcp

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Message is a single BCP command with its parameters.
//
// Parameter values are one of string, int64, float64, bool, nil,
// map[string]any or []any. Parameter names are case-insensitive and stored
// lowercase, in the order they were first added. A Message is immutable
// once constructed.
type Message struct {
	command string
	names   []string
	params  map[string]any
	complex bool
}

// Parameter is a named value used to build a Message.
type Parameter struct {
	Name  string
	Value any
}

// Param is shorthand for building a Parameter.
func Param(name string, value any) Parameter {
	return Parameter{Name: name, Value: value}
}

// NewMessage builds a message from a command and parameters. Values of other
// Go types (sized integers, slices, structs) are normalized to the supported
// kinds. A message carrying a nested value is serialized as complex.
func NewMessage(command string, params ...Parameter) *Message {
	m := &Message{
		command: strings.ToLower(strings.TrimSpace(command)),
		params:  make(map[string]any, len(params)),
	}
	for _, p := range params {
		v := normalizeValue(p.Value)
		switch v.(type) {
		case map[string]any, []any:
			m.complex = true
		}
		m.set(p.Name, v)
	}
	return m
}

// NewComplexMessage builds a message whose parameters are always serialized as
// a single json blob.
func NewComplexMessage(command string, params ...Parameter) *Message {
	m := NewMessage(command, params...)
	m.complex = true
	return m
}

func (m *Message) set(name string, value any) {
	name = strings.ToLower(name)
	if _, ok := m.params[name]; !ok {
		m.names = append(m.names, name)
	}
	m.params[name] = value
}

// Command returns the lowercase command.
func (m *Message) Command() string {
	return m.command
}

// IsComplex reports whether the parameters are carried as one json blob.
func (m *Message) IsComplex() bool {
	return m.complex
}

// Names returns the parameter names in order.
func (m *Message) Names() []string {
	names := make([]string, len(m.names))
	copy(names, m.names)
	return names
}

// Len returns the number of parameters.
func (m *Message) Len() int {
	return len(m.names)
}

// Has reports whether the parameter is present.
func (m *Message) Has(name string) bool {
	_, ok := m.params[strings.ToLower(name)]
	return ok
}

// Value returns the stored value of a parameter.
func (m *Message) Value(name string) (any, bool) {
	v, ok := m.params[strings.ToLower(name)]
	return v, ok
}

// String returns the display form of the message, without percent-encoding.
func (m *Message) String() string {
	return m.Format(false)
}

// ParamType lists the types ParamValue can convert a parameter to.
type ParamType interface {
	string | int | int64 | float64 | bool
}

// ParamValue returns the named parameter converted to T. It returns a
// *ParameterError if the parameter is missing or cannot be converted.
// Requesting a string from a non-string value yields its raw JSON text.
func ParamValue[T ParamType](m *Message, name string) (T, error) {
	var out T

	v, ok := m.Value(name)
	if !ok {
		return out, newParameterError(name, m.String(), nil)
	}

	var err error
	switch p := any(&out).(type) {
	case *string:
		*p = rawText(v)
	case *int64:
		*p, err = toInt64(v)
	case *int:
		var n int64
		n, err = toInt64(v)
		*p = int(n)
	case *float64:
		*p, err = toFloat64(v)
	case *bool:
		*p, err = toBool(v)
	}
	if err != nil {
		return out, newParameterError(name, m.String(), err)
	}
	return out, nil
}

// StringParam returns the named parameter as a string.
func (m *Message) StringParam(name string) (string, error) {
	return ParamValue[string](m, name)
}

// IntParam returns the named parameter as an int.
func (m *Message) IntParam(name string) (int, error) {
	return ParamValue[int](m, name)
}

// FloatParam returns the named parameter as a float64.
func (m *Message) FloatParam(name string) (float64, error) {
	return ParamValue[float64](m, name)
}

// BoolParam returns the named parameter as a bool.
func (m *Message) BoolParam(name string) (bool, error) {
	return ParamValue[bool](m, name)
}

// ObjectParam returns the named parameter as a JSON object. String values are
// decoded as JSON text.
func (m *Message) ObjectParam(name string) (map[string]any, error) {
	v, err := m.jsonParam(name)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, newParameterError(name, m.String(), errors.Errorf("%T is not an object", v))
	}
	return obj, nil
}

// ArrayParam returns the named parameter as a JSON array. String values are
// decoded as JSON text.
func (m *Message) ArrayParam(name string) ([]any, error) {
	v, err := m.jsonParam(name)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, newParameterError(name, m.String(), errors.Errorf("%T is not an array", v))
	}
	return arr, nil
}

// AnyParam returns the named parameter as a JSON value. String values holding
// JSON text are decoded; other strings are returned as they are.
func (m *Message) AnyParam(name string) (any, error) {
	v, ok := m.Value(name)
	if !ok {
		return nil, newParameterError(name, m.String(), nil)
	}
	if s, isString := v.(string); isString {
		if decoded, err := decodeJSON(s); err == nil {
			return decoded, nil
		}
	}
	return v, nil
}

func (m *Message) jsonParam(name string) (any, error) {
	v, ok := m.Value(name)
	if !ok {
		return nil, newParameterError(name, m.String(), nil)
	}
	s, isString := v.(string)
	if !isString {
		return v, nil
	}
	decoded, err := decodeJSON(s)
	if err != nil {
		return nil, newParameterError(name, m.String(), err)
	}
	return decoded, nil
}

// normalizeValue maps arbitrary Go values onto the supported value kinds.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil, string, int64, float64, bool:
		return t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return unsignedValue(uint64(t))
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return unsignedValue(t)
	case float32:
		return float64(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case fmt.Stringer:
		return t.String()
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	decoded, err := decodeJSON(string(data))
	if err != nil {
		return fmt.Sprint(v)
	}
	return decoded
}

// decodeJSON decodes JSON text keeping integers as int64.
func decodeJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(err, "invalid json")
	}
	if dec.More() {
		return nil, errors.New("invalid json: trailing data")
	}
	return fromJSONNumbers(v), nil
}

// unsignedValue keeps n exact when it fits an int64 and falls back to a
// float otherwise.
func unsignedValue(n uint64) any {
	if n > math.MaxInt64 {
		return float64(n)
	}
	return int64(n)
}

func fromJSONNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = fromJSONNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = fromJSONNumbers(e)
		}
		return t
	}
	return v
}

// rawText returns strings as they are and everything else as compact JSON.
func rawText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, errors.Errorf("%v is not an integer", t)
		}
		return int64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, errors.WithStack(err)
	}
	return 0, errors.Errorf("cannot convert %T to int", v)
}

func toFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, errors.WithStack(err)
	}
	return 0, errors.Errorf("cannot convert %T to float", v)
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int64:
		return t != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, errors.WithStack(err)
	}
	return false, errors.Errorf("cannot convert %T to bool", v)
}
