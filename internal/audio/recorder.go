package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"voicequery/internal/ports"
)

const (
	defaultBinary       = "ffmpeg"
	defaultStartupGrace = 250 * time.Millisecond
	defaultStopTimeout  = 1200 * time.Millisecond
	stderrTailLimit     = 2048
)

// RecorderConfig controls the ffmpeg subprocess.
type RecorderConfig struct {
	Binary       string
	StartupGrace time.Duration
	StopTimeout  time.Duration
}

// Recorder streams raw microphone PCM from an ffmpeg subprocess.
type Recorder struct {
	cfg RecorderConfig
	log *slog.Logger
}

func NewRecorder(cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = defaultBinary
	}
	if cfg.StartupGrace <= 0 {
		cfg.StartupGrace = defaultStartupGrace
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{cfg: cfg, log: logger}
}

// Available reports whether the recorder binary can be found.
func (r *Recorder) Available() error {
	if _, err := exec.LookPath(r.cfg.Binary); err != nil {
		return fmt.Errorf("microphone recorder %q is not installed: %w", r.cfg.Binary, err)
	}
	return nil
}

func (r *Recorder) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cmd := exec.CommandContext(ctx, r.cfg.Binary, captureArgs(cfg)...)
	stderr := &tailBuffer{limit: stderrTailLimit}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open recorder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder: %w", err)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	// A misconfigured input device makes ffmpeg exit almost immediately.
	grace := time.NewTimer(r.cfg.StartupGrace)
	defer grace.Stop()
	select {
	case err := <-exited:
		if err != nil {
			return nil, fmt.Errorf("recorder exited before capture started: %w: %s", err, stderr.String())
		}
		return nil, errors.New("recorder exited before capture started")
	case <-grace.C:
	}

	r.log.Debug("audio_capture_started", "binary", r.cfg.Binary, "pid", cmd.Process.Pid)
	return &recording{
		stdout:      stdout,
		stderr:      stderr,
		process:     cmd.Process,
		exited:      exited,
		stopTimeout: r.cfg.StopTimeout,
	}, nil
}

func captureArgs(cfg ports.AudioConfig) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

type recording struct {
	stdout  io.ReadCloser
	stderr  *tailBuffer
	process *os.Process
	exited  <-chan error

	stopTimeout time.Duration
	stopOnce    sync.Once
	stopErr     error
}

func (s *recording) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if errors.Is(err, os.ErrClosed) {
		err = io.EOF
	}
	return n, err
}

func (s *recording) Close() error {
	return s.Stop()
}

// Stop interrupts ffmpeg so it flushes, and kills it if it does not exit in time.
func (s *recording) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		timer := time.NewTimer(s.stopTimeout)
		defer timer.Stop()
		select {
		case err, ok := <-s.exited:
			if ok {
				s.stopErr = exitError(err)
			}
		case <-timer.C:
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.exited; ok {
				s.stopErr = exitError(err)
			}
		}

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil {
			if tail := s.stderr.String(); tail != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, tail)
			}
		}
	})
	return s.stopErr
}

// exitError drops non-zero exit statuses, which are expected after an interrupt.
func exitError(err error) error {
	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; b.limit > 0 && over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(bytes.TrimSpace(b.buf))
}
