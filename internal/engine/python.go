package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/andresmejia3/faceguard/internal/types"
	"github.com/andresmejia3/faceguard/internal/utils"
)

// PythonConfig describes how to spawn and initialise one engine process.
type PythonConfig struct {
	Interpreter string
	Script      string
	Mode        DetectMode
	DetectScale int // face-to-image ratio the detector looks for (2-32)
	MaxFaces    int
}

// Python is a Capability backed by a child process. Requests go to its stdin;
// responses come back on a side-channel pipe (fd 3) so engine logs on stdout/stderr
// cannot corrupt the protocol.
type Python struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	// the process handles one request at a time
	mu sync.Mutex
}

// NewPython starts the engine process and runs its init handshake.
func NewPython(ctx context.Context, id int, cfg PythonConfig) (*Python, error) {
	interpreter := cfg.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}
	py := utils.NewSafeCommand(ctx, interpreter, "-u", cfg.Script)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("engine %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	p := &Python{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}

	if err := p.Init(cfg); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// call sends one request and waits for its response. A non-zero status becomes a StatusError.
func (p *Python) call(req request) (response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := writeMessage(p.Stdin, req); err != nil {
		return response{}, fmt.Errorf("engine %d write %s: %w", p.ID, req.Op, err)
	}
	resp, err := readMessage(p.DataPipe)
	if err != nil {
		return response{}, fmt.Errorf("engine %d read %s: %w", p.ID, req.Op, err)
	}
	if resp.Status != StatusOK {
		return resp, &StatusError{Op: req.Op, Code: resp.Status, Message: resp.Message}
	}
	return resp, nil
}

// Activate registers the SDK credentials. An engine that is already activated is fine.
func (p *Python) Activate(appID, sdkKey, activeKey string) error {
	_, err := p.call(request{
		Op:     opActivate,
		Params: map[string]string{"app_id": appID, "sdk_key": sdkKey, "active_key": activeKey},
	})
	if err != nil && Code(err) == StatusAlreadyActivated {
		return nil
	}
	return err
}

// Init configures detection mode and limits for this process.
func (p *Python) Init(cfg PythonConfig) error {
	mode := cfg.Mode
	if mode == "" {
		mode = DetectImage
	}
	_, err := p.call(request{
		Op: opInit,
		Params: map[string]string{
			"mode":         string(mode),
			"detect_scale": strconv.Itoa(cfg.DetectScale),
			"max_faces":    strconv.Itoa(cfg.MaxFaces),
		},
	})
	return err
}

func (p *Python) Detect(frame *types.Frame) ([]types.FaceBox, error) {
	if err := CheckFrame(frame); err != nil {
		return nil, err
	}
	resp, err := p.call(request{Op: opDetect, Frame: toWire(frame)})
	if err != nil {
		return nil, err
	}
	return resp.Faces, nil
}

func (p *Python) AssessQuality(frame *types.Frame, face types.FaceBox) (float32, error) {
	if err := CheckFrame(frame); err != nil {
		return 0, err
	}
	resp, err := p.call(request{Op: opQuality, Frame: toWire(frame), Face: &face})
	if err != nil {
		return 0, err
	}
	return resp.Score, nil
}

func (p *Python) LivenessScore(frame *types.Frame, face types.FaceBox, mode types.Mode) (float32, error) {
	if err := CheckFrame(frame); err != nil {
		return 0, err
	}
	resp, err := p.call(request{Op: opLiveness, Frame: toWire(frame), Face: &face, Mode: mode.String()})
	if err != nil {
		return 0, err
	}
	return resp.Score, nil
}

func (p *Python) ExtractFeature(frame *types.Frame, face types.FaceBox) (types.Feature, error) {
	if err := CheckFrame(frame); err != nil {
		return types.Feature{}, err
	}
	resp, err := p.call(request{Op: opExtract, Frame: toWire(frame), Face: &face})
	if err != nil {
		return types.Feature{}, err
	}
	if len(resp.Feature) == 0 {
		return types.Feature{}, &StatusError{Op: opExtract, Code: -1, Message: "empty feature"}
	}
	return types.Feature{Data: resp.Feature}, nil
}

func (p *Python) Compare(a, b types.Feature) (float32, error) {
	resp, err := p.call(request{Op: opCompare, Features: [][]byte{a.Data, b.Data}})
	if err != nil {
		return 0, err
	}
	return resp.Score, nil
}

// Close shuts the process down and reaps it.
func (p *Python) Close() {
	p.Stdin.Close()
	p.DataPipe.Close()
	if p.Cmd != nil {
		p.Cmd.Wait()
	}
}
