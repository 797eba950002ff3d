// Package ffmpeg extracts audio tracks from uploaded video with the ffmpeg
// and ffprobe command-line tools.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dmitrijs2005/gophaudio/internal/common"
)

// runCommand is a seam for tests; it returns stdout, and stderr text on failure.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}

// Extractor runs ffprobe/ffmpeg binaries.
type Extractor struct {
	ffmpegPath  string
	ffprobePath string
}

func New(ffmpegPath, ffprobePath string) *Extractor {
	return &Extractor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// HasAudio reports whether the media file at path carries an audio stream.
func (e *Extractor) HasAudio(ctx context.Context, path string) (bool, error) {
	out, err := runCommand(ctx, e.ffprobePath,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return false, fmt.Errorf("ffprobe: %w", err)
	}
	return len(bytes.TrimSpace(out)) > 0, nil
}

// ExtractAudio returns the audio track of the video at path encoded as MP3.
// A video without audio yields common.ErrNoAudioTrack.
func (e *Extractor) ExtractAudio(ctx context.Context, path string) ([]byte, error) {
	ok, err := e.HasAudio(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrNoAudioTrack
	}

	out, err := runCommand(ctx, e.ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-vn",
		"-acodec", "libmp3lame",
		"-f", "mp3",
		"pipe:1",
	)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	return out, nil
}
