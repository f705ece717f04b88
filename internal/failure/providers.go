package failure

import (
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// FromOpenAI classifies an error returned by the go-openai client.
func FromOpenAI(component, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return withCause(FromHTTPStatus(component, op, apiErr.HTTPStatusCode, nil), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return withCause(FromHTTPStatus(component, op, reqErr.HTTPStatusCode, nil), err)
	}
	return FromTransport(component, op, err)
}

// FromAnthropic classifies an error returned by the Anthropic SDK.
func FromAnthropic(component, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return withCause(FromHTTPStatus(component, op, apiErr.StatusCode, nil), err)
	}
	return FromTransport(component, op, err)
}

func withCause(e *Error, cause error) *Error {
	e.Err = cause
	return e
}

// IsClientRejection reports whether err carries a 400, 415 or 422 status.
func IsClientRejection(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
