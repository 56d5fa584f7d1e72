package rawvideo

import (
	"fmt"
	"io"

	"github.com/five82/spool/internal/codec"
)

// SynthConfig controls synthetic stream generation.
type SynthConfig struct {
	Width       int
	Height      int
	Frames      int
	GOPSize     int // Frames per intra refresh; 0 means intra only at frame 0
	BandsPerPkt int // Row bands per packet, at least 1
}

// Synthesize writes a deterministic test stream: a diagonal gradient that
// drifts one pixel per frame. Intra frames carry raw rows; the rest carry
// row deltas against the previous frame.
func Synthesize(w io.Writer, cfg SynthConfig) error {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Frames <= 0 {
		return fmt.Errorf("invalid synthesis config %dx%d x%d", cfg.Width, cfg.Height, cfg.Frames)
	}
	if cfg.BandsPerPkt < 1 {
		cfg.BandsPerPkt = 1
	}

	sw, err := NewWriter(w, StreamInfo{
		Width:  cfg.Width,
		Height: cfg.Height,
		PixFmt: codec.PixFmtGray8,
		Frames: uint32(cfg.Frames),
	})
	if err != nil {
		return err
	}

	prev := make([]byte, cfg.Width*cfg.Height)
	cur := make([]byte, cfg.Width*cfg.Height)

	for f := 0; f < cfg.Frames; f++ {
		renderGradient(cur, cfg.Width, cfg.Height, f)

		intra := f == 0 || (cfg.GOPSize > 0 && f%cfg.GOPSize == 0)

		payload := cur
		if !intra {
			payload = make([]byte, len(cur))
			for i := range cur {
				payload[i] = cur[i] - prev[i]
			}
		}

		flags := uint8(0)
		if intra {
			flags = flagIntra
		}

		bands := splitBands(payload, cfg.Width, cfg.Height, cfg.BandsPerPkt)
		if err := sw.WritePacket(appendPacket(uint32(f), flags, bands, cfg.Width)); err != nil {
			return fmt.Errorf("failed to write frame %d: %w", f, err)
		}

		prev, cur = cur, prev
	}

	return sw.Flush()
}

// renderGradient fills buf with frame f of the drifting gradient.
func renderGradient(buf []byte, width, height, f int) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			buf[y*width+x] = byte(x + y + f)
		}
	}
}

// splitBands slices a full frame into at most n contiguous row bands of
// ceil(height/n) rows each; the last band may be shorter, and fewer than n
// bands result when the rounding leaves nothing for the tail.
func splitBands(frame []byte, width, height, n int) []band {
	if n > height {
		n = height
	}
	bands := make([]band, 0, n)
	rowsPerBand := (height + n - 1) / n
	for start := 0; start < height; start += rowsPerBand {
		count := min(rowsPerBand, height-start)
		b := band{startRow: start, rows: make([][]byte, count)}
		for r := 0; r < count; r++ {
			row := start + r
			b.rows[r] = frame[row*width : (row+1)*width]
		}
		bands = append(bands, b)
	}
	return bands
}
