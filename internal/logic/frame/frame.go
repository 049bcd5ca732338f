// Package frame transforms raw captured bytes into bounded, corrected,
// compressed images ready for upload. Processing is best-effort: a
// usable-but-unoptimized image beats a dropped capture.
package frame

import (
	"bytes"
	"context"
	"time"

	"github.com/disintegration/imaging"

	"snapproof/internal/debug"
	"snapproof/internal/hw/camera"
)

// Shot is the immutable record of one finished photograph.
type Shot struct {
	Position camera.Position
	Raw      []byte
	At       time.Time
}

// Image is the processed output for one logical position. Once produced,
// the originating Shot buffer can be discarded to bound memory.
type Image struct {
	Position camera.Position
	Data     []byte
}

// Processor applies orientation correction and a bounded
// downscale/re-encode to captured frames, on a background pool that is
// independent of the hardware worker.
type Processor struct {
	// MaxDimension is the longest allowed edge; larger frames are scaled
	// down preserving aspect ratio. Zero means 1920.
	MaxDimension int

	// JPEGQuality is the re-encode quality factor (1-100). Zero means 80.
	JPEGQuality int

	sem chan struct{}
}

// NewProcessor creates a processor whose pool admits at most workers
// concurrent transforms. workers <= 0 means 2.
func NewProcessor(maxDimension, jpegQuality, workers int) *Processor {
	if workers <= 0 {
		workers = 2
	}
	return &Processor{
		MaxDimension: maxDimension,
		JPEGQuality:  jpegQuality,
		sem:          make(chan struct{}, workers),
	}
}

// Process transforms one shot:
//  1. selfie frames get a horizontal mirror correction (front-facing
//     sensors produce a pre-mirrored image that must be flipped back);
//  2. frames whose longer edge exceeds MaxDimension are scaled down
//     preserving aspect ratio;
//  3. the result is re-encoded as JPEG at the fixed quality factor, so
//     output size is bounded even for already-small inputs.
//
// Decode failures return the raw bytes unmodified instead of failing the
// capture. Process blocks while the pool is saturated; call it from a
// goroutine, never from the hardware worker.
func (p *Processor) Process(ctx context.Context, shot Shot) Image {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return Image{Position: shot.Position, Data: shot.Raw}
	}

	maxDim := p.MaxDimension
	if maxDim <= 0 {
		maxDim = 1920
	}
	quality := p.JPEGQuality
	if quality <= 0 {
		quality = 80
	}

	img, err := imaging.Decode(bytes.NewReader(shot.Raw))
	if err != nil {
		debug.Verbose("frame decode failed for %s, passing raw bytes through: %v", shot.Position, err)
		return Image{Position: shot.Position, Data: shot.Raw}
	}

	if shot.Position == camera.Selfie {
		img = imaging.FlipH(img)
	}

	b := img.Bounds()
	if b.Dx() > maxDim || b.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		debug.Verbose("frame encode failed for %s, passing raw bytes through: %v", shot.Position, err)
		return Image{Position: shot.Position, Data: shot.Raw}
	}

	debug.Verbose("processed %s frame: %d -> %d bytes (%dx%d)",
		shot.Position, len(shot.Raw), out.Len(), img.Bounds().Dx(), img.Bounds().Dy())
	return Image{Position: shot.Position, Data: out.Bytes()}
}
