// Package recorder implements session recording: attaching read-only to a
// running ring and appending every new frame to a ".bfm"-style file,
// standing in for original_source/src/core/recorder.py's SessionRecorder.
package recorder

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/BrunoKrugel/bikefit-vision/internal/logging"
	"github.com/BrunoKrugel/bikefit-vision/internal/ring"
)

// fileMagic marks the start of a recording, matching the Python
// original's "BFM1" format marker.
const fileMagic = "BFM1"

const pollInterval = 2 * time.Millisecond

// Packet is one recorded frame: the ring's per-slot metadata plus its
// geometry and raw pixels, msgpack-encoded one after another in the file.
type Packet struct {
	FrameID   int64   `msgpack:"frame_id"`
	Timestamp float64 `msgpack:"timestamp"`
	MathSalt  float32 `msgpack:"math_salt"`
	Flags     uint8   `msgpack:"flags"`
	Width     int     `msgpack:"width"`
	Height    int     `msgpack:"height"`
	Channels  int     `msgpack:"channels"`
	Pixels    []byte  `msgpack:"pixels"`
}

// Recorder polls a named ring and appends every new frame_id to a file on
// disk until Stop is called.
type Recorder struct {
	filename string
	shmName  string
	shape    ring.Shape

	log  *logging.Logger
	stop chan struct{}
	done chan struct{}
}

// New constructs a recorder for the given file, attaching to the named
// ring at the given shape (the shape must match what the owning worker
// allocated — normally learned from the worker's shm_handshake payload).
func New(filename, shmName string, shape ring.Shape) *Recorder {
	return &Recorder{
		filename: filename,
		shmName:  shmName,
		shape:    shape,
		log:      logging.For("recorder"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start attaches to the ring and begins the record loop in a background
// goroutine. An error attaching (e.g. the ring does not exist yet) is
// returned immediately rather than retried, matching the Python
// original's "camera must already be running" precondition.
func (r *Recorder) Start() error {
	attached, err := ring.Attach(r.shmName, r.shape)
	if err != nil {
		return fmt.Errorf("recorder: attach %s: %w", r.shmName, err)
	}

	f, err := os.Create(r.filename)
	if err != nil {
		attached.Close()
		return fmt.Errorf("recorder: create %s: %w", r.filename, err)
	}

	go r.recordLoop(attached, f)
	return nil
}

// Stop signals the record loop to exit and blocks until it has flushed
// and closed the file.
func (r *Recorder) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Recorder) recordLoop(src *ring.Ring, f *os.File) {
	defer close(r.done)
	defer src.Close()
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	if _, err := w.WriteString(fileMagic); err != nil {
		r.log.Printf("write header: %v", err)
		return
	}

	enc := msgpack.NewEncoder(w)
	lastFrameID := int64(-1)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			hdr, pixels, err := src.ReadLatest()
			if err != nil {
				continue
			}
			if hdr.FrameID <= lastFrameID {
				continue
			}
			lastFrameID = hdr.FrameID

			packet := Packet{
				FrameID:   hdr.FrameID,
				Timestamp: hdr.Timestamp,
				MathSalt:  hdr.MathSalt,
				Flags:     hdr.Flags,
				Width:     r.shape.Width,
				Height:    r.shape.Height,
				Channels:  r.shape.Channels,
				Pixels:    pixels,
			}
			if err := enc.Encode(&packet); err != nil {
				r.log.Printf("encode frame %d: %v", hdr.FrameID, err)
				continue
			}
			if hdr.FrameID%90 == 0 {
				r.log.Printf("recorded frame %d", hdr.FrameID)
			}
		}
	}
}
