package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EnvelopeTemplate is the literal shape the reasoning engine is asked to
// return when it wants a tool invoked.
const EnvelopeTemplate = `{"server": "name of the server the tool is from", "tool_name": "selected tool name", "arguments": {"name arg1": value, "name arg2": value}}`

// Envelope is a routing instruction parsed from reasoning output. It is
// untrusted until resolved against a catalog snapshot.
type Envelope struct {
	Server    string         `json:"server"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// String renders the envelope as compact JSON.
func (e Envelope) String() string {
	args := e.Arguments
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(Envelope{Server: e.Server, ToolName: e.ToolName, Arguments: args})
	if err != nil {
		return fmt.Sprintf("{server:%s tool_name:%s arguments:%v}", e.Server, e.ToolName, e.Arguments)
	}
	return string(data)
}

// Decision is the tagged result of reading reasoning output: either a
// parsed envelope or the raw text that could not be read as one.
type Decision struct {
	envelope *Envelope
	raw      string
	err      error
}

// Parsed wraps a valid envelope.
func Parsed(env Envelope, raw string) Decision {
	return Decision{envelope: &env, raw: raw}
}

// Unparsed wraps text that is not a valid envelope.
func Unparsed(raw string, reason error) Decision {
	return Decision{raw: raw, err: reason}
}

// Envelope returns the parsed envelope, if any.
func (d Decision) Envelope() (Envelope, bool) {
	if d.envelope == nil {
		return Envelope{}, false
	}
	return *d.envelope, true
}

// IsParsed reports whether the decision carries an envelope.
func (d Decision) IsParsed() bool { return d.envelope != nil }

// Raw returns the text the decision was read from.
func (d Decision) Raw() string { return d.raw }

// Reason explains why an Unparsed decision was rejected.
func (d Decision) Reason() error { return d.err }

var (
	errNotObject     = errors.New("not a JSON object")
	errEmptyServer   = errors.New("server is empty")
	errEmptyTool     = errors.New("tool_name is empty")
	errTrailingValue = errors.New("trailing data after envelope")
)

// ParseDecision reads text as an envelope. Surrounding whitespace and a
// single Markdown code fence are tolerated. Empty objects, null, non-object
// JSON, unknown top-level fields and blank server or tool names all yield
// an Unparsed decision.
func ParseDecision(text string) Decision {
	body := stripFence(strings.TrimSpace(text))
	if !strings.HasPrefix(body, "{") {
		return Unparsed(text, errNotObject)
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Unparsed(text, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Unparsed(text, errTrailingValue)
	}

	env.Server = strings.TrimSpace(env.Server)
	env.ToolName = strings.TrimSpace(env.ToolName)
	if env.Server == "" {
		return Unparsed(text, errEmptyServer)
	}
	if env.ToolName == "" {
		return Unparsed(text, errEmptyTool)
	}
	if env.Arguments == nil {
		env.Arguments = map[string]any{}
	}
	normalizeNumbers(env.Arguments)
	return Parsed(env, text)
}

// stripFence removes one ```lang ... ``` wrapper.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := s[3 : len(s)-3]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.Contains(inner[:nl], "{") {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}

// normalizeNumbers turns json.Number values into int64 when integral and
// float64 otherwise, so tool arguments keep the precision the engine wrote.
func normalizeNumbers(m map[string]any) {
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		normalizeNumbers(t)
		return t
	case []any:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	default:
		return v
	}
}

// compact is used in logs to keep multi-line engine output on one line.
func compact(s string) string {
	var b bytes.Buffer
	if err := json.Compact(&b, []byte(s)); err == nil {
		return b.String()
	}
	return strings.Join(strings.Fields(s), " ")
}
