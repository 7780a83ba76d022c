package types

import (
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

const megabyte = 1024 * 1024

// PixelFormat is the memory layout of Frame.Data.
type PixelFormat int

const (
	PixelBGR24 PixelFormat = iota // 3 bytes per pixel, B G R
	PixelGray8                    // 1 byte per pixel, used by IR cameras
)

// BytesPerPixel for the format.
func (p PixelFormat) BytesPerPixel() int {
	if p == PixelGray8 {
		return 1
	}
	return 3
}

// Buffer pool to reduce GC pressure while streaming
var frameBufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, megabyte) },
}

func acquireBuffer(size int) []byte {
	buf := frameBufferPool.Get().([]byte)
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	return buf[:size]
}

// Frame is a single captured bitmap. A Frame has exactly one owner at a time and
// must be released by that owner; after Release the pixel buffer is recycled.
type Frame struct {
	Width  int
	Height int
	Format PixelFormat
	Data   []byte

	pooled   bool
	released atomic.Bool
}

// NewFrame wraps caller-owned pixels. Release on such a frame is a no-op for the buffer.
func NewFrame(width, height int, format PixelFormat, data []byte) *Frame {
	return &Frame{Width: width, Height: height, Format: format, Data: data}
}

// NewPooledFrame allocates a frame whose buffer comes from the shared pool.
func NewPooledFrame(width, height int, format PixelFormat) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Format: format,
		Data:   acquireBuffer(width * height * format.BytesPerPixel()),
		pooled: true,
	}
}

// Stride is the number of bytes in one row.
func (f *Frame) Stride() int { return f.Width * f.Format.BytesPerPixel() }

// Clone returns an independent pooled copy, used to hand a snapshot to a background job.
func (f *Frame) Clone() *Frame {
	c := NewPooledFrame(f.Width, f.Height, f.Format)
	copy(c.Data, f.Data)
	return c
}

// Release returns the buffer to the pool. Safe to call more than once.
func (f *Frame) Release() {
	if f == nil || !f.released.CompareAndSwap(false, true) {
		return
	}
	if f.pooled {
		frameBufferPool.Put(f.Data[:0])
	}
	f.Data = nil
}

// Released reports whether Release has been called.
func (f *Frame) Released() bool { return f.released.Load() }

// FrameFromImage converts any decoded image into a pooled frame of the given format.
func FrameFromImage(img image.Image, format PixelFormat) *Frame {
	b := img.Bounds()
	f := NewPooledFrame(b.Dx(), b.Dy(), format)
	bpp := format.BytesPerPixel()

	// Fast path for the common decoder outputs
	if src, ok := img.(*image.Gray); ok && format == PixelGray8 {
		for y := 0; y < f.Height; y++ {
			copy(f.Data[y*f.Width:(y+1)*f.Width], src.Pix[y*src.Stride:y*src.Stride+f.Width])
		}
		return f
	}

	off := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if format == PixelGray8 {
				f.Data[off] = color.GrayModel.Convert(color.RGBA64{R: uint16(r), G: uint16(g), B: uint16(bl), A: 0xffff}).(color.Gray).Y
			} else {
				f.Data[off] = uint8(bl >> 8)
				f.Data[off+1] = uint8(g >> 8)
				f.Data[off+2] = uint8(r >> 8)
			}
			off += bpp
		}
	}
	return f
}

// RGBA renders the frame into a new RGBA image (for drawing overlays and encoding).
func (f *Frame) RGBA() *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	bpp := f.Format.BytesPerPixel()
	for y := 0; y < f.Height; y++ {
		src := y * f.Stride()
		dst := y * m.Stride
		for x := 0; x < f.Width; x++ {
			if f.Format == PixelGray8 {
				v := f.Data[src]
				m.Pix[dst], m.Pix[dst+1], m.Pix[dst+2] = v, v, v
			} else {
				m.Pix[dst] = f.Data[src+2]
				m.Pix[dst+1] = f.Data[src+1]
				m.Pix[dst+2] = f.Data[src]
			}
			m.Pix[dst+3] = 255
			src += bpp
			dst += 4
		}
	}
	return m
}
