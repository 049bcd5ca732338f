package camera

import (
	"bytes"
	"context"
	"fmt"
	"image/color"

	"github.com/disintegration/imaging"

	"snapproof/internal/debug"
)

// MockBackend synthesizes frames in memory. Used for development on
// machines without cameras and for exercising the full pipeline in tests.
type MockBackend struct {
	// Width and Height of generated frames. Zero means 640x480.
	Width  int
	Height int
}

var _ Backend = (*MockBackend)(nil)

// Lookup always succeeds; every position gets a synthetic device.
func (b *MockBackend) Lookup(pos Position) (Device, error) {
	w, h := b.Width, b.Height
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	return &mockDevice{pos: pos, width: w, height: h}, nil
}

type mockDevice struct {
	pos     Position
	width   int
	height  int
	started bool
}

func (d *mockDevice) Start() error {
	d.started = true
	debug.Trace("mock device %s started", d.pos)
	return nil
}

func (d *mockDevice) Stop() error {
	d.started = false
	debug.Trace("mock device %s stopped", d.pos)
	return nil
}

// Capture generates a flat-color JPEG. The hue encodes the position and
// the flash mode raises brightness, so downstream processing is visibly
// distinguishable during development.
func (d *mockDevice) Capture(ctx context.Context, flash FlashMode) ([]byte, error) {
	if !d.started {
		return nil, fmt.Errorf("mock device %s not started", d.pos)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var c color.NRGBA
	if d.pos == Selfie {
		c = color.NRGBA{R: 180, G: 80, B: 80, A: 255}
	} else {
		c = color.NRGBA{R: 80, G: 80, B: 180, A: 255}
	}
	if flash == FlashOn {
		c.R = boost(c.R)
		c.G = boost(c.G)
		c.B = boost(c.B)
	}

	img := imaging.New(d.width, d.height, c)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encoding mock frame: %w", err)
	}
	return buf.Bytes(), nil
}

func boost(v uint8) uint8 {
	if v > 195 {
		return 255
	}
	return v + 60
}
