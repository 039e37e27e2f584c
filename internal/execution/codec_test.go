package execution

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestJSON(t *testing.T) {
	id := uuid.MustParse("7f0c1f9e-2b4c-4c5e-9d3e-1a2b3c4d5e6f")

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "shell",
			req:  Request{ID: id, JobID: "nightly", Runner: Shell{Command: "true"}},
			want: `{"id":"7f0c1f9e-2b4c-4c5e-9d3e-1a2b3c4d5e6f","job_id":"nightly","runner":{"type":"shell","command":"true"}}`,
		},
		{
			name: "queue",
			req:  Request{ID: id, JobID: "fanout", Runner: Queue{DSN: "amqp://localhost", Exchange: "jobs", RoutingKey: "a.b"}},
			want: `{"id":"7f0c1f9e-2b4c-4c5e-9d3e-1a2b3c4d5e6f","job_id":"fanout","runner":{"type":"queue","dsn":"amqp://localhost","exchange":"jobs","routing_key":"a.b"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.req)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			var got Request
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, tt.req, got)
		})
	}
}

func TestRequestJSON_UnknownRunnerSurvives(t *testing.T) {
	raw := `{"id":"7f0c1f9e-2b4c-4c5e-9d3e-1a2b3c4d5e6f","job_id":"x","runner":{"type":"lambda","arn":"a"}}`

	var req Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	assert.Equal(t, Unknown{Type: "lambda"}, req.Runner)
	assert.Equal(t, "lambda", req.Runner.Kind())
}

func TestRequestJSON_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"missing id", `{"job_id":"x","runner":{"type":"shell","command":"true"}}`, "missing required field: id"},
		{"missing runner", `{"id":"7f0c1f9e-2b4c-4c5e-9d3e-1a2b3c4d5e6f","job_id":"x"}`, "runner missing"},
		{"missing type", `{"id":"7f0c1f9e-2b4c-4c5e-9d3e-1a2b3c4d5e6f","runner":{"command":"true"}}`, "field: type"},
		{"bad uuid", `{"id":"nope","runner":{"type":"shell"}}`, "invalid UUID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			err := json.Unmarshal([]byte(tt.raw), &req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMarshalRunnerSpec_Nil(t *testing.T) {
	_, err := MarshalRunnerSpec(nil)
	assert.Error(t, err)
}

func TestResponseCodec(t *testing.T) {
	id := uuid.New()

	var buf bytes.Buffer
	require.NoError(t, EncodeResponse(&buf, Succeeded(id)))
	assert.Contains(t, buf.String(), `"result":"success"`)

	got, err := DecodeResponse(&buf)
	require.NoError(t, err)
	assert.Equal(t, Succeeded(id), got)
}

func TestDecodeResponse_Strict(t *testing.T) {
	_, err := DecodeResponse(strings.NewReader(`{"id":"7f0c1f9e-2b4c-4c5e-9d3e-1a2b3c4d5e6f","result":"success","extra":1}`))
	assert.Error(t, err)

	_, err = DecodeResponse(strings.NewReader(`{"id":"7f0c1f9e-2b4c-4c5e-9d3e-1a2b3c4d5e6f","result":"maybe"}`))
	assert.Error(t, err)

	_, err = DecodeResponse(strings.NewReader(`{"result":"failure"}`))
	assert.Error(t, err)
}

func TestRequestCodecStream(t *testing.T) {
	req := NewRequest("job-1", Shell{Command: "echo hi"})

	var buf bytes.Buffer
	require.NoError(t, EncodeRequest(&buf, req))
	got, err := DecodeRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}
