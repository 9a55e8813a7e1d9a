// Package whisper transcribes audio with the whisper.cpp command line tool.
package whisper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go-video-recorder/internal/adapters/secondary/command"
	"go-video-recorder/internal/core/ports"
)

type transcriber struct {
	binary    string
	modelPath string
	language  string
	runner    command.Runner
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	stat      func(name string) (os.FileInfo, error)
	readDir   func(name string) ([]os.DirEntry, error)
	readFile  func(name string) ([]byte, error)
}

// NewTranscriber builds a whisper.cpp backend. modelPath may point at a
// model file or at a directory holding .bin/.gguf models.
func NewTranscriber(binary, modelPath, language string) ports.Transcriber {
	return newTranscriber(binary, modelPath, language, command.ExecRunner{})
}

func newTranscriber(binary, modelPath, language string, runner command.Runner) *transcriber {
	if binary == "" {
		binary = "whisper-cli"
	}
	return &transcriber{
		binary:    binary,
		modelPath: modelPath,
		language:  language,
		runner:    runner,
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		stat:      os.Stat,
		readDir:   os.ReadDir,
		readFile:  os.ReadFile,
	}
}

func (t *transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	model, err := t.resolveModelPath(t.modelPath)
	if err != nil {
		return "", &command.Error{Stage: "transcribe", Message: err.Error(), Err: err}
	}

	dir, err := t.mkdirTemp("", "video-recorder-whisper-*")
	if err != nil {
		return "", &command.Error{
			Stage:   "transcribe",
			Message: "failed to create temporary workspace",
			Err:     err,
		}
	}
	defer t.removeAll(dir)

	base := filepath.Join(dir, "transcript")
	args := buildArgs(model, audioPath, base, t.language)
	result, err := t.runner.Run(ctx, t.binary, args...)
	if err != nil {
		return "", &command.Error{
			Stage:   "transcribe",
			Message: "whisper.cpp transcription failed",
			Result:  result,
			Err:     err,
		}
	}

	content, err := t.readFile(base + ".txt")
	if err != nil {
		return "", &command.Error{
			Stage:   "transcribe",
			Message: "whisper.cpp completed but transcript .txt file is missing",
			Result:  result,
			Err:     err,
		}
	}
	return strings.TrimSpace(string(content)), nil
}

// resolveModelPath returns model file path from file or directory input.
func (t *transcriber) resolveModelPath(rawPath string) (string, error) {
	modelPath := strings.TrimSpace(rawPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := t.stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := t.readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(names)
	return filepath.Join(modelPath, names[0]), nil
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

func buildArgs(modelPath, audioPath, textBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", textBase,
		"-otxt",
		"-nt",
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	return args
}
