package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"snapproof/internal/debug"
)

var errInstallHint = errors.New("executable not found, install with: sudo apt install -y gstreamer1.0-tools gstreamer1.0-plugins-good gstreamer1.0-plugins-base")

// GstBackend serves positions from V4L2 device nodes, capturing single
// frames through a one-shot gst-launch-1.0 pipeline.
type GstBackend struct {
	// Devices maps each logical position to a V4L2 device node,
	// e.g. /dev/video0.
	Devices map[Position]string

	// CaptureTimeout bounds a single capture, pipeline warm-up included.
	// Zero means 10 seconds.
	CaptureTimeout time.Duration
}

var _ Backend = (*GstBackend)(nil)

// Lookup returns a Device for the V4L2 node mapped to pos.
func (b *GstBackend) Lookup(pos Position) (Device, error) {
	path, ok := b.Devices[pos]
	if !ok || path == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, pos)
	}
	timeout := b.CaptureTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &gstDevice{path: path, timeout: timeout}, nil
}

// gstDevice is one V4L2 camera node driven via gstreamer tools.
type gstDevice struct {
	path    string
	timeout time.Duration
	started bool
}

func (d *gstDevice) Start() error {
	if _, err := os.Stat(d.path); err != nil {
		return fmt.Errorf("device node %s: %w", d.path, err)
	}
	d.started = true
	debug.Trace("gstreamer device %s started", d.path)
	return nil
}

func (d *gstDevice) Stop() error {
	d.started = false
	debug.Trace("gstreamer device %s stopped", d.path)
	return nil
}

// Capture runs a one-shot pipeline writing a single JPEG into a temp
// directory, waits for the frame file to appear, and returns its bytes.
// The flash mode is a hint only; V4L2 webcams have no controllable flash.
func (d *gstDevice) Capture(ctx context.Context, flash FlashMode) ([]byte, error) {
	if !d.started {
		return nil, fmt.Errorf("device %s not started", d.path)
	}

	tempDir, err := os.MkdirTemp("", "snapproof-frame-")
	if err != nil {
		return nil, fmt.Errorf("making temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new file change watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(tempDir); err != nil {
		return nil, fmt.Errorf("registering file change watcher for temp dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	args := []string{
		"v4l2src",
		"device=" + d.path,
		"num-buffers=1",
		"!",
		"videoconvert",
		"!",
		"jpegenc",
		"!",
		"multifilesink",
		"location=" + filepath.Join(tempDir, "frame%05d.jpg"),
	}
	debug.Trace("starting gstreamer as gst-launch-1.0 %s (flash hint: %s)", strings.Join(args, " "), flash)

	cmd := exec.CommandContext(ctx, "gst-launch-1.0", args...)
	cmd.Dir = tempDir
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, fmt.Errorf("starting gstreamer with gst-launch-1.0: %w", err)
	}

	// Wait until the frame file shows up, then let the pipeline drain so
	// the file is fully written before reading it.
	var framePath string
	for framePath == "" {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil, errors.New("frame watcher closed")
			}
			if ev.Op&fsnotify.Remove != 0 || !strings.HasSuffix(ev.Name, ".jpg") {
				continue
			}
			framePath = ev.Name
		case werr, ok := <-watcher.Errors:
			if ok && werr != nil {
				return nil, fmt.Errorf("watching for frame: %w", werr)
			}
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			return nil, fmt.Errorf("capture on %s: %w", d.path, ctx.Err())
		}
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("gstreamer pipeline on %s: %w", d.path, err)
	}

	raw, err := os.ReadFile(framePath)
	if err != nil {
		return nil, fmt.Errorf("reading frame %s: %w", framePath, err)
	}
	return raw, nil
}

// ListDevices returns the V4L2 video sources visible to gstreamer.
// Useful for wiring positions to device nodes in the config file.
func ListDevices() ([]string, error) {
	cmd := exec.Command("gst-device-monitor-1.0")
	buf, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = errInstallHint
		}
		return nil, fmt.Errorf("listing devices using gst-device-monitor-1.0: %w", err)
	}

	devs := parseDeviceMonitor(buf)
	if len(devs) == 0 {
		return nil, errors.New("no video devices found")
	}
	return devs, nil
}

// parseDeviceMonitor extracts Video/Source device paths from
// gst-device-monitor-1.0 output.
func parseDeviceMonitor(out []byte) []string {
	var devs []string
	var isVideo bool
	var path string

	flush := func() {
		if isVideo && path != "" {
			devs = append(devs, path)
		}
		isVideo = false
		path = ""
	}

	b := bufio.NewScanner(bytes.NewReader(out))
	for b.Scan() {
		s := strings.TrimSpace(b.Text())
		switch {
		case s == "Device found:":
			flush()
		case strings.HasPrefix(s, "class :"):
			isVideo = strings.TrimSpace(strings.SplitN(s, ":", 2)[1]) == "Video/Source"
		case strings.HasPrefix(s, "device.path ="):
			path = strings.TrimSpace(strings.SplitN(s, "=", 2)[1])
		}
	}
	flush()
	return devs
}
