// Package rawvideo implements a band-coded raw video codec used to drive
// the frame-parallel pipeline end to end. Packets carry whole frames split
// into row bands; inter frames are row deltas against the previous frame, so
// decoding one frame depends on the previous frame's row progress.
package rawvideo

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/five82/spool/internal/codec"
)

// Stream container layout. A file is a fixed header followed by
// length-prefixed packets.
const (
	streamMagic   = "SBND"
	streamVersion = 1
	headerSize    = 14

	// maxPacketSize bounds a single packet read to keep a corrupt length
	// prefix from exhausting memory.
	maxPacketSize = 64 << 20
)

// Packet payload flags.
const (
	flagIntra uint8 = 1 << iota
	// flagCorrupt marks a packet the decoder must reject; used to exercise
	// error propagation through the pipeline.
	flagCorrupt
)

// StreamInfo describes a band stream file.
type StreamInfo struct {
	Width  int
	Height int
	PixFmt codec.PixelFormat
	Frames uint32
}

// Reader reads packets from a band stream.
type Reader struct {
	r    *bufio.Reader
	info StreamInfo
}

// NewReader parses the stream header and positions the reader at the first
// packet.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)

	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to read stream header: %w", err)
	}
	if string(hdr[0:4]) != streamMagic {
		return nil, fmt.Errorf("not a band stream (bad magic %q)", hdr[0:4])
	}
	if hdr[4] != streamVersion {
		return nil, fmt.Errorf("unsupported stream version %d", hdr[4])
	}

	info := StreamInfo{
		PixFmt: codec.PixelFormat(hdr[5]),
		Width:  int(binary.LittleEndian.Uint16(hdr[6:8])),
		Height: int(binary.LittleEndian.Uint16(hdr[8:10])),
		Frames: binary.LittleEndian.Uint32(hdr[10:14]),
	}
	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("invalid stream dimensions %dx%d", info.Width, info.Height)
	}

	return &Reader{r: br, info: info}, nil
}

// Info returns the stream header description.
func (r *Reader) Info() StreamInfo { return r.info }

// NextPacket returns the next packet, or io.EOF at end of stream.
func (r *Reader) NextPacket() (*codec.Packet, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read packet length: %w", err)
	}
	size := binary.LittleEndian.Uint32(lenBuf[:])
	if size == 0 || size > maxPacketSize {
		return nil, fmt.Errorf("invalid packet size %d", size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return nil, fmt.Errorf("truncated packet: %w", err)
	}

	idx := binary.LittleEndian.Uint32(data[0:4])
	return &codec.Packet{Data: data, PTS: int64(idx), DTS: int64(idx)}, nil
}

// Writer writes a band stream.
type Writer struct {
	w    *bufio.Writer
	info StreamInfo
}

// NewWriter writes the stream header for info and returns a packet writer.
func NewWriter(w io.Writer, info StreamInfo) (*Writer, error) {
	bw := bufio.NewWriter(w)

	var hdr [headerSize]byte
	copy(hdr[0:4], streamMagic)
	hdr[4] = streamVersion
	hdr[5] = byte(info.PixFmt)
	binary.LittleEndian.PutUint16(hdr[6:8], uint16(info.Width))
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(info.Height))
	binary.LittleEndian.PutUint32(hdr[10:14], info.Frames)
	if _, err := bw.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to write stream header: %w", err)
	}

	return &Writer{w: bw, info: info}, nil
}

// WritePacket appends one length-prefixed packet.
func (w *Writer) WritePacket(data []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.w.Write(data)
	return err
}

// Flush flushes buffered packet data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// band is one run of rows within a frame payload.
type band struct {
	startRow int
	rows     [][]byte
}

// packetHeader is the decoded fixed part of a packet payload.
type packetHeader struct {
	frameIdx  uint32
	intra     bool
	corrupt   bool
	bandCount int
}

// parsePacket splits a packet payload into its header and bands. width is
// the row stride in bytes.
func parsePacket(data []byte, width int) (packetHeader, []band, error) {
	if len(data) < 6 {
		return packetHeader{}, nil, fmt.Errorf("packet too short: %d bytes", len(data))
	}
	hdr := packetHeader{
		frameIdx:  binary.LittleEndian.Uint32(data[0:4]),
		intra:     data[4]&flagIntra != 0,
		corrupt:   data[4]&flagCorrupt != 0,
		bandCount: int(data[5]),
	}

	bands := make([]band, 0, hdr.bandCount)
	off := 6
	for i := 0; i < hdr.bandCount; i++ {
		if len(data)-off < 4 {
			return packetHeader{}, nil, fmt.Errorf("truncated band header in frame %d", hdr.frameIdx)
		}
		start := int(binary.LittleEndian.Uint16(data[off : off+2]))
		count := int(binary.LittleEndian.Uint16(data[off+2 : off+4]))
		off += 4

		if len(data)-off < count*width {
			return packetHeader{}, nil, fmt.Errorf("truncated band data in frame %d", hdr.frameIdx)
		}
		b := band{startRow: start, rows: make([][]byte, count)}
		for r := 0; r < count; r++ {
			b.rows[r] = data[off : off+width]
			off += width
		}
		bands = append(bands, b)
	}

	return hdr, bands, nil
}

// appendPacket serializes a frame payload. bands holds the full frame
// (raw rows for intra, deltas for inter) split into runs of rows.
func appendPacket(frameIdx uint32, flags uint8, bands []band, width int) []byte {
	size := 6
	for _, b := range bands {
		size += 4 + len(b.rows)*width
	}

	data := make([]byte, 6, size)
	binary.LittleEndian.PutUint32(data[0:4], frameIdx)
	data[4] = flags
	data[5] = byte(len(bands))

	for _, b := range bands {
		var bh [4]byte
		binary.LittleEndian.PutUint16(bh[0:2], uint16(b.startRow))
		binary.LittleEndian.PutUint16(bh[2:4], uint16(len(b.rows)))
		data = append(data, bh[:]...)
		for _, row := range b.rows {
			data = append(data, row...)
		}
	}
	return data
}
