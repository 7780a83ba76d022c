package engine

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/andresmejia3/faceguard/internal/types"
	"github.com/fxamacker/cbor/v2"
)

// maxMessageSize guards against a corrupted length header allocating gigabytes.
const maxMessageSize = 64 * 1024 * 1024

// Operation names understood by the engine process.
const (
	opActivate = "activate"
	opInit     = "init"
	opDetect   = "detect"
	opQuality  = "quality"
	opLiveness = "liveness"
	opExtract  = "extract"
	opCompare  = "compare"
)

type wireFrame struct {
	Width  int    `cbor:"w"`
	Height int    `cbor:"h"`
	Format int    `cbor:"fmt"`
	Data   []byte `cbor:"data"`
}

type request struct {
	Op       string            `cbor:"op"`
	Frame    *wireFrame        `cbor:"frame,omitempty"`
	Face     *types.FaceBox    `cbor:"face,omitempty"`
	Mode     string            `cbor:"mode,omitempty"`
	Features [][]byte          `cbor:"features,omitempty"`
	Params   map[string]string `cbor:"params,omitempty"`
}

type response struct {
	Status  int             `cbor:"status"`
	Message string          `cbor:"msg,omitempty"`
	Faces   []types.FaceBox `cbor:"faces,omitempty"`
	Score   float32         `cbor:"score"`
	Feature []byte          `cbor:"feature,omitempty"`
}

func toWire(f *types.Frame) *wireFrame {
	return &wireFrame{Width: f.Width, Height: f.Height, Format: int(f.Format), Data: f.Data[:f.Height*f.Stride()]}
}

// writeMessage frames a CBOR payload as [uint32 big-endian length][payload].
func writeMessage(w io.Writer, req request) error {
	payload, err := cbor.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", req.Op, err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(payload))); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func readMessage(r io.Reader) (response, error) {
	var resp response
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return resp, err // the engine process died or closed its pipe
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxMessageSize {
		return resp, fmt.Errorf("engine response too large: %d bytes", respLen)
	}
	body := make([]byte, respLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return resp, err
	}
	if err := cbor.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("decode engine response: %w", err)
	}
	return resp, nil
}
