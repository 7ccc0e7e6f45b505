package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Player plays a complete audio clip and blocks until playback finishes.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// CommandPlayer plays WAV audio through a platform audio player process.
type CommandPlayer struct {
	// Command overrides the platform player. "{file}" is replaced with the
	// path of a temporary WAV; without it the path is appended.
	Command []string
	Logger  *slog.Logger
}

// NewCommandPlayer returns a player using command, or the platform default.
func NewCommandPlayer(command []string, logger *slog.Logger) *CommandPlayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandPlayer{Command: command, Logger: logger.With("component", "player")}
}

// Play validates the clip, writes it to a temp file and runs the player.
func (p *CommandPlayer) Play(ctx context.Context, audio []byte) error {
	info, err := ParseWAV(audio)
	if err != nil {
		return &PlaybackError{Op: "decode", Err: err}
	}
	if info.DataBytes == 0 {
		return nil
	}

	f, err := os.CreateTemp("", "ytvoice-reply-*.wav")
	if err != nil {
		return &PlaybackError{Op: "play", Err: err}
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(audio); err != nil {
		f.Close()
		return &PlaybackError{Op: "play", Err: err}
	}
	if err := f.Close(); err != nil {
		return &PlaybackError{Op: "play", Err: err}
	}

	argv, err := playerCommand(p.Command, path)
	if err != nil {
		return &PlaybackError{Op: "play", Err: err}
	}
	p.Logger.Debug("playing reply", "player", argv[0], "duration", info.Duration())

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		} else {
			err = fmt.Errorf("%s: %w", argv[0], err)
		}
		return &PlaybackError{Op: "play", Err: err}
	}
	return nil
}

// PlayerCommand returns the player command line for file.
func PlayerCommand(override []string, file string) ([]string, error) {
	return playerCommand(override, file)
}

func playerCommand(override []string, file string) ([]string, error) {
	if len(override) > 0 {
		argv := make([]string, 0, len(override)+1)
		substituted := false
		for _, a := range override {
			if strings.Contains(a, "{file}") {
				substituted = true
				a = strings.ReplaceAll(a, "{file}", file)
			}
			argv = append(argv, a)
		}
		if !substituted {
			argv = append(argv, file)
		}
		return argv, nil
	}

	have := func(name string) bool {
		_, err := exec.LookPath(name)
		return err == nil
	}

	switch runtime.GOOS {
	case "darwin":
		return []string{"afplay", file}, nil
	case "linux":
		switch {
		case have("paplay"):
			return []string{"paplay", file}, nil
		case have("aplay"):
			return []string{"aplay", "-q", file}, nil
		case have("ffplay"):
			return []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", file}, nil
		}
		return nil, errors.New("install pulseaudio-utils, alsa-utils or ffmpeg for audio playback")
	case "windows":
		if have("ffplay") {
			return []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", file}, nil
		}
		return []string{"powershell", "-NoProfile", "-Command",
			fmt.Sprintf("(New-Object Media.SoundPlayer '%s').PlaySync()", file)}, nil
	}
	return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
}
