package models

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Envelope is the invocation event handed to the ingest handler.
// The field names follow the API Gateway proxy event so the Lambda runtime can
// decode it directly.
type Envelope struct {
	// Body is the raw request body. nil means the platform sent no body.
	Body *string `json:"body"`

	// IsBase64Encoded marks Body as base64 text that must be decoded first
	IsBase64Encoded bool `json:"isBase64Encoded"`

	Headers        map[string]string `json:"headers,omitempty"`
	RequestContext RequestContext    `json:"requestContext"`
}

// RequestContext carries the platform request metadata we log.
type RequestContext struct {
	RequestID string `json:"requestId,omitempty"`
}

// NewEnvelope creates an envelope around body.
func NewEnvelope(body string, base64Encoded bool) Envelope {
	return Envelope{
		Body:            &body,
		IsBase64Encoded: base64Encoded,
	}
}

// WithRequestID sets the request ID on the envelope
func (e Envelope) WithRequestID(id string) Envelope {
	e.RequestContext.RequestID = id
	return e
}

// RawBody returns the body text, substituting an empty object when absent.
func (e Envelope) RawBody() string {
	if e.Body == nil {
		return "{}"
	}
	return *e.Body
}

// Response is the invocation result: status code, headers and a JSON body.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// AcceptedBody is returned when a document was stored.
type AcceptedBody struct {
	Status string `json:"status"`
	Key    string `json:"key"`
}

// ErrorBody is returned for every failed invocation.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusAccepted is the status value of a successful response
const StatusAccepted = "accepted"

// NewResponse builds a JSON response with the given status code.
func NewResponse(statusCode int, body any) Response {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		statusCode = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"error":"ingest_failed","message":"response encoding failed"}`)
	}

	return Response{
		StatusCode: statusCode,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(bytes.TrimRight(buf.Bytes(), "\n")),
	}
}

// Accepted builds the 200 response for a stored document.
func Accepted(key string) Response {
	return NewResponse(http.StatusOK, AcceptedBody{Status: StatusAccepted, Key: key})
}

// Failure builds an error response.
func Failure(statusCode int, code, message string) Response {
	return NewResponse(statusCode, ErrorBody{Error: code, Message: message})
}
