// Package verify is the boundary to the remote verification service.
// The service itself (accept/reject, ML scoring) is a collaborator; this
// package only defines the handoff contract and a local sink for rigs
// and development.
package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"snapproof/internal/debug"
	"snapproof/internal/logic/frame"
)

// Uploader receives the two processed images of a completed session.
type Uploader interface {
	Submit(ctx context.Context, sessionID, habitID string, selfie, subject frame.Image) error
}

// DirSink writes the two images as JPEG files into a directory. Used by
// CLI runs and as a fallback when no remote endpoint is configured.
type DirSink struct {
	Dir string
}

var _ Uploader = (*DirSink)(nil)

// Submit writes <session>-selfie.jpg and <session>-subject.jpg to Dir.
func (d *DirSink) Submit(ctx context.Context, sessionID, habitID string, selfie, subject frame.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	for _, img := range []frame.Image{selfie, subject} {
		name := fmt.Sprintf("%s-%s.jpg", sessionID, img.Position)
		path := filepath.Join(d.Dir, name)
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		debug.Info("wrote %s (%d bytes, habit %s)", path, len(img.Data), habitID)
	}
	return nil
}
