package types

import (
	"image"
	"image/color"
	"testing"
)

func TestLargestFace(t *testing.T) {
	tests := []struct {
		name  string
		faces []FaceBox
		want  int
	}{
		{"No faces", nil, -1},
		{"Single face", []FaceBox{{ID: 1, Rect: Rect{1, 1, 10, 10}}}, 0},
		{
			name: "Largest wins",
			faces: []FaceBox{
				{ID: 1, Rect: Rect{1, 1, 10, 10}},
				{ID: 2, Rect: Rect{1, 1, 50, 50}},
				{ID: 3, Rect: Rect{1, 1, 20, 20}},
			},
			want: 1,
		},
		{
			name: "Tie keeps first occurrence",
			faces: []FaceBox{
				{ID: 1, Rect: Rect{10, 10, 30, 30}},
				{ID: 2, Rect: Rect{50, 50, 70, 70}},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LargestFace(tt.faces); got != tt.want {
				t.Errorf("LargestFace() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRectDegenerate(t *testing.T) {
	tests := []struct {
		rect Rect
		want bool
	}{
		{Rect{10, 10, 20, 20}, false},
		{Rect{0, 10, 20, 20}, true},
		{Rect{10, 0, 20, 20}, true},
		{Rect{10, 10, 0, 20}, true},
		{Rect{10, 10, 20, 0}, true},
	}
	for _, tt := range tests {
		if got := tt.rect.Degenerate(); got != tt.want {
			t.Errorf("%+v.Degenerate() = %v, want %v", tt.rect, got, tt.want)
		}
	}
}

func TestFrameCloneIsIndependent(t *testing.T) {
	f := NewPooledFrame(2, 2, PixelGray8)
	for i := range f.Data {
		f.Data[i] = byte(i + 1)
	}

	c := f.Clone()
	f.Release()

	if !f.Released() {
		t.Fatal("Expected original frame to be released")
	}
	if len(c.Data) != 4 || c.Data[3] != 4 {
		t.Errorf("Clone lost data after original release: %v", c.Data)
	}
	c.Release()
	c.Release() // second release must be harmless
}

func TestFrameFromImageBGR(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	f := FrameFromImage(img, PixelBGR24)
	defer f.Release()

	if f.Data[0] != 30 || f.Data[1] != 20 || f.Data[2] != 10 {
		t.Errorf("Expected BGR [30 20 10], got %v", f.Data[:3])
	}

	back := f.RGBA()
	if r, g, b, _ := back.At(0, 0).RGBA(); r>>8 != 10 || g>>8 != 20 || b>>8 != 30 {
		t.Errorf("RGBA round trip mismatch: %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestFeatureClone(t *testing.T) {
	orig := Feature{Data: []byte{1, 2, 3}}
	c := orig.Clone()
	orig.Data[0] = 9
	if c.Data[0] != 1 {
		t.Error("Feature.Clone shares its buffer with the original")
	}
	if (Feature{}).Clone().Size() != 0 {
		t.Error("Cloning an empty feature should stay empty")
	}
}
