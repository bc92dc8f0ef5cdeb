package service

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidParams marks command data that does not match the command
var ErrInvalidParams = errors.New("invalid parameters")

// ParamError names the offending parameter
type ParamError struct {
	Name   string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("parameter %s: %s", e.Name, e.Reason)
}

// Unwrap returns ErrInvalidParams
func (e *ParamError) Unwrap() error { return ErrInvalidParams }

// Params is the decoded data object of a command
type Params map[string]interface{}

// ParamsOf accepts nil or a JSON object
func ParamsOf(data interface{}) (Params, error) {
	switch v := data.(type) {
	case nil:
		return Params{}, nil
	case map[string]interface{}:
		return Params(v), nil
	case Params:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: data must be an object, got %T", ErrInvalidParams, data)
	}
}

// String returns a required, non-empty string parameter
func (p Params) String(name string) (string, error) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return "", &ParamError{Name: name, Reason: "required"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ParamError{Name: name, Reason: fmt.Sprintf("must be a string, got %T", raw)}
	}
	if s == "" {
		return "", &ParamError{Name: name, Reason: "must not be empty"}
	}
	return s, nil
}

// Text returns a required string parameter that may be empty
func (p Params) Text(name string) (string, error) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return "", &ParamError{Name: name, Reason: "required"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ParamError{Name: name, Reason: fmt.Sprintf("must be a string, got %T", raw)}
	}
	return s, nil
}

// OptString returns a string parameter or def when absent
func (p Params) OptString(name, def string) string {
	if s, ok := p[name].(string); ok && s != "" {
		return s
	}
	return def
}

// Int returns an integer parameter or def when absent
func (p Params) Int(name string, def int) (int, error) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, &ParamError{Name: name, Reason: "must be an integer"}
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, &ParamError{Name: name, Reason: "must be an integer"}
		}
		return n, nil
	default:
		return 0, &ParamError{Name: name, Reason: fmt.Sprintf("must be a number, got %T", raw)}
	}
}

// Bool returns a boolean parameter or def when absent
func (p Params) Bool(name string, def bool) bool {
	if b, ok := p[name].(bool); ok {
		return b
	}
	return def
}
