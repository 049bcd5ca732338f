package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"snapproof/internal/hw/camera"
	"snapproof/internal/logic/frame"
)

func TestDirSink_Submit(t *testing.T) {
	dir := t.TempDir()
	sink := &DirSink{Dir: filepath.Join(dir, "out")}

	selfie := frame.Image{Position: camera.Selfie, Data: []byte("selfie-bytes")}
	subject := frame.Image{Position: camera.Subject, Data: []byte("subject-bytes")}

	if err := sink.Submit(context.Background(), "sess-1", "habit-42", selfie, subject); err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "out", "sess-1-selfie.jpg"))
	if err != nil {
		t.Fatalf("selfie file: %v", err)
	}
	if string(got) != "selfie-bytes" {
		t.Errorf("selfie content = %q", got)
	}

	got, err = os.ReadFile(filepath.Join(dir, "out", "sess-1-subject.jpg"))
	if err != nil {
		t.Fatalf("subject file: %v", err)
	}
	if string(got) != "subject-bytes" {
		t.Errorf("subject content = %q", got)
	}
}

func TestDirSink_CancelledContext(t *testing.T) {
	sink := &DirSink{Dir: t.TempDir()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.Submit(ctx, "sess-2", "", frame.Image{}, frame.Image{})
	if err == nil {
		t.Error("expected error for cancelled context")
	}
}
