package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"

	"go-video-recorder/internal/adapters/secondary/command"
	"go-video-recorder/internal/core/ports"
)

const audioFileName = "audio-16k-mono.wav"

type audioExtractor struct {
	ffmpegPath string
	tmpDir     string
	runner     command.Runner
	mkdirTemp  func(dir, pattern string) (string, error)
	removeAll  func(path string) error
}

// NewAudioExtractor returns an extractor that shells out to ffmpeg. An empty
// tmpDir uses the system temp directory.
func NewAudioExtractor(ffmpegPath, tmpDir string) ports.AudioExtractor {
	return newAudioExtractor(ffmpegPath, tmpDir, command.ExecRunner{})
}

func newAudioExtractor(ffmpegPath, tmpDir string, runner command.Runner) *audioExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &audioExtractor{
		ffmpegPath: ffmpegPath,
		tmpDir:     tmpDir,
		runner:     runner,
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
	}
}

func (f *audioExtractor) Extract(ctx context.Context, videoPath string) (ports.Audio, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return ports.Audio{}, &command.Error{
			Stage:   "extract",
			Message: fmt.Sprintf("cannot access video: %s", videoPath),
			Err:     err,
		}
	}

	dir, err := f.mkdirTemp(f.tmpDir, "video-recorder-audio-*")
	if err != nil {
		return ports.Audio{}, &command.Error{
			Stage:   "extract",
			Message: "failed to create temporary workspace",
			Err:     err,
		}
	}
	cleanup := func() error { return f.removeAll(dir) }

	out := filepath.Join(dir, audioFileName)
	args := buildExtractArgs(videoPath, out)
	result, err := f.runner.Run(ctx, f.ffmpegPath, args...)
	if err != nil {
		_ = cleanup()
		return ports.Audio{}, &command.Error{
			Stage:   "extract",
			Message: "ffmpeg audio extraction failed",
			Result:  result,
			Err:     err,
		}
	}

	duration, err := probeWAV(out)
	if err != nil {
		_ = cleanup()
		return ports.Audio{}, &command.Error{
			Stage:   "extract",
			Message: "ffmpeg produced unreadable audio",
			Result:  result,
			Err:     err,
		}
	}

	return ports.Audio{
		Path:     out,
		Duration: duration,
		Cleanup:  cleanup,
	}, nil
}

// probeWAV validates the RIFF header and returns the audio length in seconds.
func probeWAV(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("%s is not a valid wav file", path)
	}
	if err := dec.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("locate wav data chunk: %w", err)
	}
	bytesPerSec := int(dec.SampleRate) * int(dec.NumChans) * int(dec.BitDepth) / 8
	if bytesPerSec == 0 {
		return 0, fmt.Errorf("%s has an empty wav format header", path)
	}
	return float64(dec.PCMSize) / float64(bytesPerSec), nil
}

// buildExtractArgs drops the video stream and resamples to mono 16kHz PCM,
// the input format speech-to-text backends expect.
func buildExtractArgs(videoPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		outPath,
	}
}
