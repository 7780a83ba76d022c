package cmd

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/andresmejia3/faceguard/internal/config"
	"github.com/andresmejia3/faceguard/internal/engine"
	"github.com/andresmejia3/faceguard/internal/store"
	"github.com/andresmejia3/faceguard/internal/types"
)

func TestCollectImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "notes.txt", "c.pgm"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte{1, 2}, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	single := filepath.Join(t.TempDir(), "single.bmp")
	os.WriteFile(single, []byte{1, 2}, 0644)

	got, err := collectImages([]string{dir, single})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "a.JPG"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "c.pgm"),
		single,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("collectImages() = %v, want %v", got, want)
	}

	if _, err := collectImages([]string{filepath.Join(dir, "missing.png")}); err == nil {
		t.Error("Expected an error for a missing path")
	}
}

func TestLabelFor(t *testing.T) {
	tests := []struct {
		path, label, want string
	}{
		{"/photos/alice.jpg", "", "alice"},
		{"/photos/bob.smith.png", "", "bob.smith"},
		{"/photos/alice.jpg", "Alice Doe", "Alice Doe"},
	}
	for _, tt := range tests {
		if got := labelFor(tt.path, tt.label); got != tt.want {
			t.Errorf("labelFor(%q, %q) = %q, want %q", tt.path, tt.label, got, tt.want)
		}
	}
}

func TestParseLabelArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		index   int
		label   string
		wantErr bool
	}{
		{"Valid", []string{"3", "Alice"}, 3, "Alice", false},
		{"Trimmed", []string{"0", "  Bob  "}, 0, "Bob", false},
		{"Not a number", []string{"x", "Alice"}, 0, "", true},
		{"Negative", []string{"-1", "Alice"}, 0, "", true},
		{"Blank name", []string{"1", "   "}, 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, label, err := parseLabelArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLabelArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if index != tt.index || label != tt.label {
				t.Errorf("parseLabelArgs() = %d, %q, want %d, %q", index, label, tt.index, tt.label)
			}
		})
	}
}

func TestValidateServeFlags(t *testing.T) {
	video := filepath.Join(t.TempDir(), "rgb.mp4")
	os.WriteFile(video, []byte{0}, 0644)

	tests := []struct {
		name    string
		opts    ServeOptions
		wantErr bool
	}{
		{"Cameras only", ServeOptions{}, false},
		{"Replay file", ServeOptions{RGBSource: video}, false},
		{"Missing file", ServeOptions{IRSource: video + ".gone"}, true},
		{"Directory", ServeOptions{RGBSource: filepath.Dir(video)}, true},
		{"IR with rgb-only", ServeOptions{IRSource: video, RGBOnly: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateServeFlags(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateServeFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStartupPlan(t *testing.T) {
	Cfg = config.Default()
	defer func() { Cfg = nil }()

	tests := []struct {
		name    string
		opts    ServeOptions
		rgbFile string
		irFile  string
		devices []int
		dual    bool
	}{
		{"Two cameras", ServeOptions{}, "", "", []int{0, 1}, true},
		{"One camera", ServeOptions{}, "", "", []int{0}, false},
		{"Rgb only flag", ServeOptions{RGBOnly: true}, "", "", []int{0, 1}, false},
		{"Two replay files", ServeOptions{}, "a.mp4", "b.mp4", nil, true},
		{"Replay plus camera", ServeOptions{}, "a.mp4", "", []int{0}, true},
		{"Single replay file", ServeOptions{}, "a.mp4", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Cfg.Cameras.RGBSource = tt.rgbFile
			Cfg.Cameras.IRSource = tt.irFile
			plan := startupPlan(tt.opts, tt.devices)
			if plan.Dual != tt.dual {
				t.Errorf("startupPlan().Dual = %v, want %v (%s)", plan.Dual, tt.dual, plan.Reason)
			}
		})
	}
}

func TestPlanEngines(t *testing.T) {
	single := planEngines(false)
	if _, ok := single[types.ModeIR]; ok || len(single) != 1 {
		t.Errorf("RGB-only plan must not start an IR engine: %+v", single)
	}

	dual := planEngines(true)
	rgb, ir := dual[types.ModeRGB], dual[types.ModeIR]
	if rgb.Detector.Mode != engine.DetectVideo || rgb.Recognizer.Mode != engine.DetectImage {
		t.Errorf("Unexpected RGB engines %+v", rgb)
	}
	if ir.Detector != ir.Recognizer || ir.Detector.Mode != engine.DetectVideo {
		t.Errorf("IR must detect and recognise on one video-mode engine, got %+v", ir)
	}
	for _, id := range []int{rgb.Detector.ID, rgb.Recognizer.ID} {
		if id == ir.Detector.ID {
			t.Errorf("Engine %d is shared between the RGB and IR streams", id)
		}
	}
}

func TestCaptureInput(t *testing.T) {
	Cfg = config.Default()
	defer func() { Cfg = nil }()

	in := captureInput(2, "")
	if in.Device != "/dev/video2" || in.Path != "" || in.Width != 640 || in.FPS != 25 {
		t.Errorf("Unexpected device input %+v", in)
	}
	in = captureInput(2, "clip.mp4")
	if in.Device != "" || in.Path != "clip.mp4" {
		t.Errorf("Unexpected file input %+v", in)
	}
}

func TestFilterEntries(t *testing.T) {
	entries := []store.EntryInfo{
		{Index: 0, Label: "Zoë Saldaña"},
		{Index: 1, Label: "john_smith"},
		{Index: 2, Label: "Jane"},
	}
	tests := []struct {
		filter string
		want   []int
	}{
		{"", []int{0, 1, 2}},
		{"zoe", []int{0}},
		{"JOHN SMITH", []int{1}},
		{"ja", []int{2}},
		{"nobody", nil},
	}
	for _, tt := range tests {
		var got []int
		for _, e := range filterEntries(entries, tt.filter) {
			got = append(got, e.Index)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("filterEntries(%q) = %v, want %v", tt.filter, got, tt.want)
		}
	}
}

func TestValidateThreshold(t *testing.T) {
	for _, v := range []float32{0, 0.5, 1} {
		if err := validateThreshold(v); err != nil {
			t.Errorf("validateThreshold(%v) = %v", v, err)
		}
	}
	for _, v := range []float32{-0.1, 1.5} {
		if err := validateThreshold(v); err == nil {
			t.Errorf("validateThreshold(%v) should fail", v)
		}
	}
}
