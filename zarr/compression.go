package zarr

import (
	"bytes"
	"io"

	"github.com/qri-io/dataset/compression"
)

// CompressionMeta defines compression settings zarr-go understands
type CompressionMeta struct {
	ID      string `json:"id"`
	Cname   string `json:"cname,omitempty"`
	Clevel  int    `json:"clevel,omitempty"`
	Shuffle int    `json:"shuffle,omitempty"`
}

// Zstd is the compressor new arrays are written with.
func Zstd() *CompressionMeta { return &CompressionMeta{ID: "zstd", Clevel: 1} }

func (m *CompressionMeta) Decompressor(r io.Reader) (io.ReadCloser, error) {
	return compression.Decompressor(m.ID, r)
}

func (m *CompressionMeta) Compressor(w io.Writer) (io.WriteCloser, error) {
	return compression.Compressor(m.ID, w)
}

// decompress reads a whole stored chunk. A nil codec means raw bytes.
func decompress(m *CompressionMeta, r io.Reader) ([]byte, error) {
	if m == nil {
		return io.ReadAll(r)
	}
	d, err := m.Decompressor(r)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return io.ReadAll(d)
}

func compress(m *CompressionMeta, raw []byte) ([]byte, error) {
	if m == nil {
		return raw, nil
	}
	buf := &bytes.Buffer{}
	w, err := m.Compressor(buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
