package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (engine logs)
// This ensures we don't lose critical crash information if an engine process dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command bound to ctx and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box without exiting.
// Engine logs are dumped when a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 FACEGUARD ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nENGINE CRASH LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy for faceguard.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Video Capture ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// CaptureInput describes where an ffmpeg capture pipe reads from.
type CaptureInput struct {
	Device string // e.g. /dev/video0; takes precedence over Path
	Path   string // video file, replayed in real time and looped
	Width  int
	Height int
	FPS    int
}

// CaptureArgs builds the ffmpeg argument list that turns a camera or file into an MJPEG stream on stdout.
func CaptureArgs(in CaptureInput) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if in.Device != "" {
		args = append(args, "-f", "v4l2")
		if in.FPS > 0 {
			args = append(args, "-framerate", strconv.Itoa(in.FPS))
		}
		if in.Width > 0 && in.Height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", in.Width, in.Height))
		}
		args = append(args, "-i", in.Device)
	} else {
		args = append(args, "-re", "-stream_loop", "-1", "-i", in.Path)
		if in.Width > 0 && in.Height > 0 {
			args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", in.Width, in.Height))
		}
	}
	// Using -vcodec mjpeg ensures we get JPEGs Go can split
	return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
}

// NewCaptureCmd creates the ffmpeg decoder pipe for a capture input.
func NewCaptureCmd(ctx context.Context, in CaptureInput) *SafeCommand {
	return NewSafeCommand(ctx, "ffmpeg", CaptureArgs(in)...)
}

// DeviceForIndex maps a camera index to its V4L2 device node.
func DeviceForIndex(idx int) string {
	return "/dev/video" + strconv.Itoa(idx)
}

// ListCameras returns the indices of the V4L2 devices present, in ascending order.
func ListCameras() []int {
	return listCamerasIn("/dev")
}

func listCamerasIn(dir string) []int {
	matches, _ := filepath.Glob(filepath.Join(dir, "video*"))
	var out []int
	for _, m := range matches {
		idx, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(m), "video"))
		if err != nil {
			continue
		}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
