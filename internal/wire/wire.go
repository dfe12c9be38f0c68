// Package wire implements C12's binary boundary: a canonical
// varint-length-prefixed frame around an RLP-encoded payload, used for
// the PoW block-proposal gossip channel and the storage-node
// request/response transport. JSON is reserved for the admin/record-event
// surface (internal/rpc) and for the Raft log (internal/consensus/raft),
// matching the distinction spec.md §4.12 draws between the two framings.
package wire

import (
	"io"

	"github.com/libp2p/go-msgio"
)

// FrameWriter writes one varint-length-prefixed message at a time.
type FrameWriter struct{ w msgio.Writer }

// NewFrameWriter wraps w for varint-framed writes.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: msgio.NewVarintWriter(w)}
}

// WriteFrame writes one complete message as a single frame.
func (f *FrameWriter) WriteFrame(msg []byte) error {
	return f.w.WriteMsg(msg)
}

// FrameReader reads one varint-length-prefixed message at a time.
type FrameReader struct{ r msgio.ReadCloser }

// NewFrameReader wraps r for varint-framed reads.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: msgio.NewVarintReader(r)}
}

// ReadFrame reads the next complete message.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	return f.r.ReadMsg()
}

// Close releases the underlying reader's internal buffer pool.
func (f *FrameReader) Close() error { return f.r.Close() }
