package vkapi

import (
	"bytes"
	"encoding/json"
	"fmt"

	errs "vkharvest/pkg/errors"
)

// Kind tags the shape of a parsed response
type Kind int

const (
	// KindSuccess carries a payload and no errors
	KindSuccess Kind = iota
	// KindPartialErrors carries execution errors and maybe a payload
	KindPartialErrors
	// KindHardError is a request-level failure with no payload
	KindHardError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindPartialErrors:
		return "partial_errors"
	case KindHardError:
		return "hard_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ExecuteError is one failed inner call of an execute procedure
type ExecuteError struct {
	Method  string `json:"method"`
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

// Envelope is a parsed procedure response
type Envelope struct {
	Kind    Kind
	Payload json.RawMessage
	Errors  []ExecuteError
}

type rawEnvelope struct {
	Response      json.RawMessage `json:"response"`
	ExecuteErrors []ExecuteError  `json:"execute_errors"`
	Error         *ExecuteError   `json:"error"`
}

// ParseEnvelope classifies a response body. A body that is not a JSON object
// or has none of response, execute_errors and error is a parsing error.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, "decode envelope", err)
	}

	switch {
	case raw.Error != nil:
		return &Envelope{Kind: KindHardError, Errors: []ExecuteError{*raw.Error}}, nil
	case len(raw.ExecuteErrors) > 0:
		return &Envelope{Kind: KindPartialErrors, Payload: raw.Response, Errors: raw.ExecuteErrors}, nil
	case present(raw.Response):
		return &Envelope{Kind: KindSuccess, Payload: raw.Response}, nil
	default:
		return nil, errs.New(errs.ErrorTypeParsing, "envelope has no response and no errors")
	}
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// HasPayload reports whether a usable response is attached
func (e *Envelope) HasPayload() bool {
	return present(e.Payload)
}

// HasCode reports whether any error carries code
func (e *Envelope) HasCode(code int) bool {
	for _, ee := range e.Errors {
		if ee.Code == code {
			return true
		}
	}
	return false
}

// Exhausted reports whether the provider signaled quota exhaustion
func (e *Envelope) Exhausted() bool {
	return e.HasCode(CodeRateLimit)
}

// Err summarizes the errors as a typed error, nil for a success
func (e *Envelope) Err() error {
	if len(e.Errors) == 0 {
		return nil
	}
	first := e.Errors[0]
	t := errs.ErrorTypeTransient
	if e.Exhausted() {
		t = errs.ErrorTypeQuota
		first.Code = CodeRateLimit
	}
	return errs.Newf(t, "%s: %d execution error(s), first %q", e.Kind, len(e.Errors), first.Message).WithCode(first.Code)
}

// Profiles decodes a users payload
func (e *Envelope) Profiles() ([]Profile, error) {
	var out []Profile
	if !e.HasPayload() {
		return nil, nil
	}
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, "decode profiles", err)
	}
	return out, nil
}

// Items decodes a groups or walls payload of [id, data|false] pairs
func (e *Envelope) Items() ([]Item, error) {
	var out []Item
	if !e.HasPayload() {
		return nil, nil
	}
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, "decode items", err)
	}
	return out, nil
}
