package command

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	base := errors.New("exit status 1")
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without command",
			err:  &Error{Stage: "transcribe", Message: "model path is required"},
			want: "transcribe: model path is required",
		},
		{
			name: "with stderr tail",
			err: &Error{
				Stage:   "extract",
				Message: "ffmpeg audio extraction failed",
				Result:  Result{Command: "ffmpeg", ExitCode: 1, Stderr: "line one\nline two\n"},
				Err:     base,
			},
			want: "extract: ffmpeg audio extraction failed (cmd=ffmpeg exit=1): line two",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	wrapped := &Error{Stage: "extract", Err: base}
	if !errors.Is(wrapped, base) {
		t.Fatal("Error should unwrap to its cause")
	}
}

func TestExecRunnerCapturesOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	result, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo out; echo err >&2; exit 3")
	if err == nil {
		t.Fatal("expected exit error")
	}
	if result.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "out" || strings.TrimSpace(result.Stderr) != "err" {
		t.Fatalf("stdout = %q stderr = %q", result.Stdout, result.Stderr)
	}
}
