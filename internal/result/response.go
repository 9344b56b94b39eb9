package result

import (
	"encoding/json"
	"fmt"

	"github.com/wundergraph/astjson"

	jsonnode "github.com/russellyou/nadel/internal/jsonnode"
)

// Location points into the GraphQL source of a request.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is a GraphQL error as it appears in a response.
type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (path %v)", e.Message, e.Path)
}

// NewError builds an Error located at path.
func NewError(message string, path jsonnode.Path, extensions map[string]any) *Error {
	e := &Error{Message: message, Extensions: extensions}
	if len(path) > 0 {
		e.Path = path.Values()
	}
	return e
}

// ErrorFromMap converts a raw error object, as returned by a service, into an
// Error. Unknown members are kept in Extensions.
func ErrorFromMap(raw map[string]any) *Error {
	e := &Error{}
	if msg, ok := raw["message"].(string); ok {
		e.Message = msg
	}
	if path, ok := raw["path"].([]any); ok {
		e.Path = make([]any, len(path))
		for i, p := range path {
			if f, ok := p.(float64); ok {
				e.Path[i] = int(f)
			} else {
				e.Path[i] = p
			}
		}
	}
	if locs, ok := raw["locations"].([]any); ok {
		for _, l := range locs {
			lm, _ := l.(map[string]any)
			line, _ := lm["line"].(float64)
			col, _ := lm["column"].(float64)
			e.Locations = append(e.Locations, Location{Line: int(line), Column: int(col)})
		}
	}
	if ext, ok := raw["extensions"].(map[string]any); ok {
		e.Extensions = ext
	}
	for k, v := range raw {
		switch k {
		case "message", "path", "locations", "extensions":
		default:
			if e.Extensions == nil {
				e.Extensions = map[string]any{}
			}
			if _, taken := e.Extensions[k]; !taken {
				e.Extensions[k] = v
			}
		}
	}
	return e
}

// Response is the result of executing an operation, either against one
// service or against the whole gateway. Data is a JSON object, or nil for
// null data.
type Response struct {
	Data       *astjson.Value
	Errors     []*Error
	Extensions map[string]any
}

// ParseResponse parses a GraphQL response body.
func ParseResponse(raw []byte) (*Response, error) {
	v, err := jsonnode.Parse(raw)
	if err != nil {
		return nil, err
	}
	if v.Type() != astjson.TypeObject {
		return nil, fmt.Errorf("result: response must be an object, got %s", v.Type())
	}
	r := &Response{}
	if data := v.Get("data"); !jsonnode.IsNull(data) {
		if data.Type() != astjson.TypeObject {
			return nil, fmt.Errorf("result: data must be an object, got %s", data.Type())
		}
		r.Data = data
	}
	for _, e := range v.GetArray("errors") {
		if m, ok := jsonnode.ToAny(e).(map[string]any); ok {
			r.Errors = append(r.Errors, ErrorFromMap(m))
		}
	}
	if ext, ok := jsonnode.ToAny(v.Get("extensions")).(map[string]any); ok {
		r.Extensions = ext
	}
	return r, nil
}

func (r Response) MarshalJSON() ([]byte, error) {
	buf := append([]byte(nil), `{"data":`...)
	buf = jsonnode.OrNull(r.Data).MarshalTo(buf)
	if len(r.Errors) > 0 {
		errs, err := json.Marshal(r.Errors)
		if err != nil {
			return nil, err
		}
		buf = append(append(buf, `,"errors":`...), errs...)
	}
	if len(r.Extensions) > 0 {
		ext, err := json.Marshal(r.Extensions)
		if err != nil {
			return nil, err
		}
		buf = append(append(buf, `,"extensions":`...), ext...)
	}
	return append(buf, '}'), nil
}

func (r *Response) UnmarshalJSON(raw []byte) error {
	parsed, err := ParseResponse(raw)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// ErrorResponse returns a Response with null data and the given errors.
func ErrorResponse(errs ...*Error) *Response {
	return &Response{Errors: errs}
}
