package models

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDocument(t *testing.T) {
	doc, err := DecodeDocument([]byte("{\n  \"b\": 1.50,\n  \"a\": \"x <y>\"\n}"))
	require.NoError(t, err)

	assert.True(t, doc.IsObject())
	assert.Equal(t, "{\"b\":1.50,\"a\":\"x <y>\"}\n", string(doc.Bytes()))
	assert.Equal(t, len(doc.Bytes()), doc.Len())

	fields := doc.Value().(map[string]any)
	assert.Equal(t, json.Number("1.50"), fields["b"])
}

func TestDecodeDocument_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"not json", "not json"},
		{"truncated", `{"a":`},
		{"trailing data", `{"a":1} {"b":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDocument([]byte(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "decode document")
		})
	}
}

func TestDocument_NonObject(t *testing.T) {
	doc, err := DecodeDocument([]byte(`[1,2,3]`))
	require.NoError(t, err)
	assert.False(t, doc.IsObject())
	assert.Equal(t, DefaultService, doc.ServiceName())
}

func TestDocument_Timestamp(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantOK  bool
		wantErr bool
	}{
		{"present", `{"timestamp":"2024-03-05T10:00:00Z"}`, "2024-03-05T10:00:00Z", true, false},
		{"absent", `{}`, "", false, false},
		{"null", `{"timestamp":null}`, "", false, false},
		{"empty string", `{"timestamp":""}`, "", false, false},
		{"zero", `{"timestamp":0}`, "", false, false},
		{"number", `{"timestamp":1709632800}`, "", false, true},
		{"empty array", `{"timestamp":[]}`, "", false, false},
		{"empty object", `{"timestamp":{}}`, "", false, false},
		{"object", `{"timestamp":{"s":1}}`, "", false, true},
		{"array", `{"timestamp":["2024-03-05"]}`, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := DecodeDocument([]byte(tt.body))
			require.NoError(t, err)

			ts, ok, err := doc.Timestamp()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrTimestampNotText)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ts)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestDocument_ServiceName(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"service_name":"checkout"}`, "checkout"},
		{`{}`, "unknown"},
		{`{"service_name":null}`, "unknown"},
		{`{"service_name":""}`, ""},
		{`{"service_name":42}`, "42"},
		{`{"service_name":true}`, "true"},
	}

	for _, tt := range tests {
		doc, err := DecodeDocument([]byte(tt.body))
		require.NoError(t, err)
		assert.Equal(t, tt.want, doc.ServiceName(), tt.body)
	}
}

func TestEnvelope_RawBody(t *testing.T) {
	assert.Equal(t, "{}", Envelope{}.RawBody())
	assert.Equal(t, "", NewEnvelope("", false).RawBody())
	assert.Equal(t, "req-1", NewEnvelope("{}", false).WithRequestID("req-1").RequestContext.RequestID)
}

func TestEnvelope_DecodesProxyEvent(t *testing.T) {
	var env Envelope
	err := json.Unmarshal([]byte(`{"body":"eyJhIjoxfQ==","isBase64Encoded":true,"requestContext":{"requestId":"abc"}}`), &env)
	require.NoError(t, err)

	require.NotNil(t, env.Body)
	assert.Equal(t, "eyJhIjoxfQ==", *env.Body)
	assert.True(t, env.IsBase64Encoded)
	assert.Equal(t, "abc", env.RequestContext.RequestID)
}

func TestResponses(t *testing.T) {
	ok := Accepted("year=2024/month=03/day=05/service=a/1.json.gz")
	assert.Equal(t, http.StatusOK, ok.StatusCode)
	assert.Equal(t, "application/json", ok.Headers["Content-Type"])
	assert.JSONEq(t, `{"status":"accepted","key":"year=2024/month=03/day=05/service=a/1.json.gz"}`, ok.Body)

	bad := Failure(http.StatusBadRequest, "invalid_payload", "missing properties: 'event_type'")
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	assert.Equal(t, `{"error":"invalid_payload","message":"missing properties: 'event_type'"}`, bad.Body)
}
