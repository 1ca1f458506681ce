package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPError is returned for any non-2xx response from the token or metrics endpoints.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: request failed: %s: %s", e.Method, e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s: request failed: %s", e.Method, e.URL, e.Status)
}

// maxErrorBody limits how much of an error response is kept in HTTPError.Body.
const maxErrorBody = 4 << 10

func newHTTPError(res *http.Response) *HTTPError {
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	e := &HTTPError{
		StatusCode: res.StatusCode,
		Status:     res.Status,
		Body:       strings.TrimSpace(string(body)),
	}
	if res.Request != nil {
		e.Method = res.Request.Method
		e.URL = res.Request.URL.Redacted()
	}
	if e.Status == "" {
		e.Status = fmt.Sprintf("%d %s", res.StatusCode, http.StatusText(res.StatusCode))
	}
	return e
}

// SchemaError reports a response body that does not match the endpoint's expected shape.
type SchemaError struct {
	Endpoint string
	Field    string
	Reason   string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema %s: %s", e.Endpoint, e.Reason)
	}
	return fmt.Sprintf("schema %s: field %q: %s", e.Endpoint, e.Field, e.Reason)
}

// schemaFromDecode turns a json decoding error into a SchemaError.
func schemaFromDecode(endpoint string, err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &SchemaError{
			Endpoint: endpoint,
			Field:    typeErr.Field,
			Reason:   fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
		}
	}
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		if schemaErr.Endpoint == "" {
			schemaErr.Endpoint = endpoint
		}
		return schemaErr
	}
	return &SchemaError{Endpoint: endpoint, Reason: "malformed json: " + err.Error()}
}
