// Package capture delivers camera frames, one per tick, to a callback.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"sync"
	"sync/atomic"

	"github.com/andresmejia3/faceguard/internal/imaging"
	"github.com/andresmejia3/faceguard/internal/types"
	"github.com/andresmejia3/faceguard/internal/utils"
	"github.com/rs/zerolog"
)

const megabyte = 1024 * 1024

// ErrAlreadyRunning is returned by Start on a source that has not been stopped.
var ErrAlreadyRunning = errors.New("capture source already running")

// Source produces frames until stopped. The callback owns every frame it receives and must
// release it. Frames produced after Stop are never delivered.
type Source interface {
	Start(ctx context.Context, onFrame func(*types.Frame)) error
	Stop()
	IsRunning() bool
}

// FFmpegSource reads a V4L2 camera (or a looped video file) through an ffmpeg MJPEG pipe.
type FFmpegSource struct {
	Input  utils.CaptureInput
	Format types.PixelFormat
	log    zerolog.Logger

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	cmd     *utils.SafeCommand
}

func NewFFmpegSource(in utils.CaptureInput, format types.PixelFormat, log zerolog.Logger) *FFmpegSource {
	return &FFmpegSource{Input: in, Format: format, log: log}
}

func (s *FFmpegSource) IsRunning() bool { return s.running.Load() }

func (s *FFmpegSource) Start(ctx context.Context, onFrame func(*types.Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := utils.NewCaptureCmd(ctx, s.Input)
	out, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffmpeg failed to start: %w", err)
	}

	s.cmd, s.cancel, s.done = cmd, cancel, make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)
		n := pump(out, s.Format, &s.running, onFrame, s.log)
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Str("stderr", cmd.Stderr.String()).Msg("capture process exited")
		}
		s.running.Store(false)
		s.log.Info().Int("frames", n).Msg("capture ended")
	}()
	return nil
}

// Stop kills the capture process and waits for the reader to drain.
func (s *FFmpegSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.running.Store(false)
	s.cancel()
	<-s.done
	s.cancel, s.done, s.cmd = nil, nil, nil
}

// pump splits an MJPEG byte stream into frames and hands each decoded frame to onFrame while
// running is set. It returns the number of frames delivered.
func pump(r io.Reader, format types.PixelFormat, running *atomic.Bool, onFrame func(*types.Frame), log zerolog.Logger) int {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	delivered := 0
	for scanner.Scan() {
		if !running.Load() {
			break
		}
		img, err := jpeg.Decode(bytes.NewReader(scanner.Bytes()))
		if err != nil {
			log.Debug().Err(err).Msg("skipping undecodable frame")
			continue
		}
		frame := types.FrameFromImage(imaging.Fit(img), format)
		if !running.Load() {
			frame.Release()
			break
		}
		onFrame(frame)
		delivered++
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("capture stream read error")
	}
	return delivered
}
