package whisper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go-video-recorder/internal/adapters/secondary/command"
)

type fakeRunner struct {
	args []string
	run  func(args []string) (command.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (command.Result, error) {
	f.args = append([]string(nil), args...)
	return f.run(args)
}

func argValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// TestTranscribeReadsTextOutput verifies the transcript file written by whisper.cpp is returned trimmed.
func TestTranscribeReadsTextOutput(t *testing.T) {
	modelDir := t.TempDir()
	for _, name := range []string{"z-model.gguf", "a-model.bin", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(modelDir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write model: %v", err)
		}
	}

	runner := &fakeRunner{run: func(args []string) (command.Result, error) {
		base := argValue(args, "-of")
		return command.Result{}, os.WriteFile(base+".txt", []byte("  hello world \n"), 0o644)
	}}
	tr := newTranscriber("whisper-cli", modelDir, "en", runner)

	text, err := tr.Transcribe(context.Background(), "/tmp/audio.wav")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("text = %q, want %q", text, "hello world")
	}
	if got := argValue(runner.args, "-m"); got != filepath.Join(modelDir, "a-model.bin") {
		t.Fatalf("model = %s, want first model in directory", got)
	}
	if got := argValue(runner.args, "-l"); got != "en" {
		t.Fatalf("language = %q, want en", got)
	}
	if _, err := os.Stat(filepath.Dir(argValue(runner.args, "-of"))); !os.IsNotExist(err) {
		t.Fatal("temp workspace should be removed")
	}
}

func TestTranscribeMissingOutput(t *testing.T) {
	model := filepath.Join(t.TempDir(), "ggml-base.bin")
	if err := os.WriteFile(model, []byte("x"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	runner := &fakeRunner{run: func([]string) (command.Result, error) {
		return command.Result{Command: "whisper-cli"}, nil
	}}
	tr := newTranscriber("", model, "auto", runner)

	_, err := tr.Transcribe(context.Background(), "/tmp/audio.wav")
	var cmdErr *command.Error
	if !errors.As(err, &cmdErr) || cmdErr.Stage != "transcribe" {
		t.Fatalf("error = %v, want transcribe stage error", err)
	}
	if argValue(runner.args, "-l") != "" {
		t.Fatal("auto language should not pass -l")
	}
}

func TestTranscribeRunnerFailure(t *testing.T) {
	model := filepath.Join(t.TempDir(), "ggml-base.bin")
	if err := os.WriteFile(model, []byte("x"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	runErr := errors.New("exit status 3")
	runner := &fakeRunner{run: func([]string) (command.Result, error) {
		return command.Result{Command: "whisper-cli", ExitCode: 3, Stderr: "failed to load model"}, runErr
	}}
	tr := newTranscriber("whisper-cli", model, "", runner)

	if _, err := tr.Transcribe(context.Background(), "/tmp/audio.wav"); !errors.Is(err, runErr) {
		t.Fatalf("error = %v, want wrapped runner error", err)
	}
}

func TestResolveModelPath(t *testing.T) {
	tr := newTranscriber("", "", "", nil)

	if _, err := tr.resolveModelPath(" "); err == nil {
		t.Fatal("expected error for empty model path")
	}
	if _, err := tr.resolveModelPath(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing model path")
	}
	if _, err := tr.resolveModelPath(t.TempDir()); err == nil {
		t.Fatal("expected error for directory without models")
	}
}

func TestBuildArgs(t *testing.T) {
	args := buildArgs("m.bin", "a.wav", "/tmp/out", " AUTO ")
	want := []string{"-m", "m.bin", "-f", "a.wav", "-of", "/tmp/out", "-otxt", "-nt"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d] = %s, want %s", i, args[i], want[i])
		}
	}
}
