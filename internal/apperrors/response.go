package apperrors

import "time"

// Body is the error object of a failure response.
type Body struct {
	Code      Code           `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Failure is the caller-facing failure envelope.
type Failure struct {
	Success          bool      `json:"success"`
	Error            Body      `json:"error"`
	ValidationErrors []Problem `json:"validationErrors,omitempty"`
}

// Public converts err into a failure envelope. Non-operational errors are
// reduced to a generic internal error so no internals leak to the caller.
func Public(err error) Failure {
	return publicAt(err, time.Now())
}

func publicAt(err error, now time.Time) Failure {
	e := Normalize(err)
	ts := now.UTC().Format(time.RFC3339)
	if e == nil || !e.Operational {
		code := CodeInternal
		msg := "An unexpected error occurred"
		if e != nil && e.Code == CodeStorage {
			code = CodeStorage
			msg = "A storage error occurred while processing the request"
		}
		return Failure{
			Error: Body{Code: code, Message: msg, Timestamp: ts},
		}
	}
	return Failure{
		Error: Body{
			Code:      e.Code,
			Message:   e.Message,
			Details:   e.Details,
			Timestamp: ts,
		},
		ValidationErrors: e.Problems,
	}
}
