package runner

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chachacholly/kairoi/internal/execution"
)

func awaitResponse(t *testing.T, sink <-chan execution.Response, timeout time.Duration) execution.Response {
	t.Helper()
	select {
	case resp := <-sink:
		return resp
	case <-time.After(timeout):
		t.Fatal("timed out waiting for shell response")
		return execution.Response{}
	}
}

func TestShellRunner_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    execution.Outcome
	}{
		{"true", "true", execution.Success},
		{"false", "false", execution.Failure},
		{"exit code", "exit 3", execution.Failure},
		{"pipeline", "echo hello | grep -q hello", execution.Success},
		{"missing binary", "/definitely/not/here", execution.Failure},
	}

	r := NewShellRunner(ShellConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := make(chan execution.Response, 1)
			req := execution.NewRequest("job", execution.Shell{Command: tt.command})

			require.NoError(t, r.Execute(req, sink))
			resp := awaitResponse(t, sink, 5*time.Second)
			assert.Equal(t, req.ID, resp.ID)
			assert.Equal(t, tt.want, resp.Outcome)
		})
	}
}

func TestShellRunner_ExactlyOneResponse(t *testing.T) {
	r := NewShellRunner(ShellConfig{})
	sink := make(chan execution.Response, 4)
	req := execution.NewRequest("job", execution.Shell{Command: "true"})

	require.NoError(t, r.Execute(req, sink))
	awaitResponse(t, sink, 5*time.Second)

	select {
	case extra := <-sink:
		t.Fatalf("unexpected second response %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestShellRunner_RejectsSynchronously(t *testing.T) {
	tests := []struct {
		name   string
		runner *ShellRunner
		spec   execution.RunnerSpec
	}{
		{"empty command", NewShellRunner(ShellConfig{}), execution.Shell{Command: "   "}},
		{"missing interpreter", NewShellRunner(ShellConfig{Interpreter: []string{"/no/such/sh", "-c"}}), execution.Shell{Command: "true"}},
		{"wrong variant", NewShellRunner(ShellConfig{}), execution.Queue{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := make(chan execution.Response, 1)
			err := tt.runner.Execute(execution.NewRequest("job", tt.spec), sink)
			assert.ErrorIs(t, err, ErrRejected)

			select {
			case resp := <-sink:
				t.Fatalf("rejected request produced a response: %+v", resp)
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

func TestShellRunner_ReturnsBeforeCommandFinishes(t *testing.T) {
	r := NewShellRunner(ShellConfig{})
	sink := make(chan execution.Response, 1)

	start := time.Now()
	require.NoError(t, r.Execute(execution.NewRequest("slow", execution.Shell{Command: "sleep 0.5"}), sink))
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	resp := awaitResponse(t, sink, 5*time.Second)
	assert.Equal(t, execution.Success, resp.Outcome)
}

func TestShellRunner_Timeout(t *testing.T) {
	r := NewShellRunner(ShellConfig{
		Timeout:   100 * time.Millisecond,
		KillGrace: 100 * time.Millisecond,
	})
	sink := make(chan execution.Response, 1)

	start := time.Now()
	// The trap keeps the shell alive through SIGTERM so the SIGKILL path runs.
	require.NoError(t, r.Execute(execution.NewRequest("hang", execution.Shell{Command: "trap '' TERM; sleep 30"}), sink))

	resp := awaitResponse(t, sink, 5*time.Second)
	assert.Equal(t, execution.Failure, resp.Outcome)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 8}
	n, err := b.Write([]byte("hello "))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	n, err = b.Write([]byte("world, more than fits"))
	require.NoError(t, err)
	assert.Equal(t, 21, n)
	assert.Equal(t, "hello wo", b.String())

	big := &cappedBuffer{limit: maxStderrBytes}
	_, _ = big.Write([]byte(strings.Repeat("x", maxStderrBytes+10)))
	assert.Len(t, big.String(), maxStderrBytes)
}

func TestShellRunner_BackgroundChildDoesNotDelayResponse(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    execution.Outcome
	}{
		{"success", "sleep 5 & exit 0", execution.Success},
		{"failure", "sleep 5 & exit 3", execution.Failure},
		{"holds stderr", "sleep 5 >&2 & echo started >&2", execution.Success},
	}

	r := NewShellRunner(ShellConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := make(chan execution.Response, 1)
			req := execution.NewRequest("job", execution.Shell{Command: tt.command})

			start := time.Now()
			require.NoError(t, r.Execute(req, sink))
			resp := awaitResponse(t, sink, 4*time.Second)
			assert.Less(t, time.Since(start), 2*time.Second)
			assert.Equal(t, req.ID, resp.ID)
			assert.Equal(t, tt.want, resp.Outcome)
		})
	}
}
