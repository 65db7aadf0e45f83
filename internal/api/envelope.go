package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Envelope is the uniform response shape every call site deals with. All
// network and decode failures are normalized into it at the request layer,
// so nothing above ever sees a raw transport error.
type Envelope struct {
	Status  string     `json:"status"`
	ErrCode flexString `json:"error"`
	Message string     `json:"message"`
	ID      flexString `json:"id"`

	raw []byte
}

// flexString absorbs fields the API serves as string, number or bool.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	*f = flexString(strings.Trim(string(data), `"`))

	return nil
}

// OK reports logical success. A status of "error" is a failure even with
// HTTP 200; a synthetic envelope carries error=true.
func (e *Envelope) OK() bool {
	return e.Status != "error" && e.ErrCode == ""
}

// Decode unmarshals the full response body into v.
func (e *Envelope) Decode(v any) error {
	if len(e.raw) == 0 {
		return fmt.Errorf("empty response body")
	}

	if err := json.Unmarshal(e.raw, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func decodeEnvelope(body []byte) (*Envelope, error) {
	env := &Envelope{raw: body}
	if err := json.Unmarshal(body, env); err != nil {
		return nil, fmt.Errorf("malformed response envelope: %w", err)
	}

	return env, nil
}

// syntheticEnvelope mirrors the remote error shape for failures produced on
// our side of the wire, so callers keep a single failure branch.
func syntheticEnvelope(message string) *Envelope {
	return &Envelope{ErrCode: "true", Message: message}
}

// Error is the one error type the request layer surfaces: a logical failure
// envelope bound to the endpoint that produced it.
type Error struct {
	Endpoint string
	Code     string
	Message  string
	// TransferID carries the existing transfer's id when the remote
	// rejects a submission as a duplicate.
	TransferID string
}

func (e *Error) Error() string {
	if e.Code != "" && e.Code != "true" {
		return fmt.Sprintf("%s failed (%s): %s", e.Endpoint, e.Code, e.Message)
	}

	return fmt.Sprintf("%s failed: %s", e.Endpoint, e.Message)
}

// IsDuplicate reports whether err is the remote's duplicate-submission
// rejection.
func IsDuplicate(err error) bool {
	var apiErr *Error

	return errors.As(err, &apiErr) && apiErr.Code == "duplicate"
}

func (e *Envelope) asError(endpoint string) *Error {
	return &Error{
		Endpoint:   endpoint,
		Code:       string(e.ErrCode),
		Message:    e.Message,
		TransferID: string(e.ID),
	}
}
