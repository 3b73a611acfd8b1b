// Package replay plays a recorded session back into a fresh ring at the
// cadence it was captured at, standing in for
// original_source/src/core/replay_worker.py's playback-for-testing role.
package replay

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/BrunoKrugel/bikefit-vision/internal/logging"
	"github.com/BrunoKrugel/bikefit-vision/internal/recorder"
	"github.com/BrunoKrugel/bikefit-vision/internal/ring"
)

// Worker re-publishes a recorded file's frames into a ring it owns,
// pacing writes to reproduce the original inter-frame timing.
type Worker struct {
	filename string
	ringName string

	log  *logging.Logger
	stop chan struct{}
	done chan struct{}
}

// New constructs a replay worker that will create and own a ring named
// ringName.
func New(filename, ringName string) *Worker {
	return &Worker{
		filename: filename,
		ringName: ringName,
		log:      logging.For("replay"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run reads the recording's first packet to learn the frame geometry,
// creates the destination ring, then writes every packet, the first one
// included, paced by the gap between its recorded timestamp and the first
// frame's.
// It returns when the file is exhausted or Stop is called.
func (w *Worker) Run() error {
	defer close(w.done)

	f, err := os.Open(w.filename)
	if err != nil {
		return fmt.Errorf("replay: open %s: %w", w.filename, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("replay: read header: %w", err)
	}
	if string(magic) != "BFM1" {
		return fmt.Errorf("replay: %s: invalid file format", w.filename)
	}

	dec := msgpack.NewDecoder(r)

	var dst *ring.Ring
	var firstTimestamp float64
	var startedAt time.Time
	frameIdx := 0

	for {
		select {
		case <-w.stop:
			return nil
		default:
		}

		var packet recorder.Packet
		if err := dec.Decode(&packet); err != nil {
			if err == io.EOF {
				w.log.Printf("replay finished: %d frames", frameIdx)
				return nil
			}
			return fmt.Errorf("replay: decode frame %d: %w", frameIdx, err)
		}

		if dst == nil {
			shape := ring.Shape{Height: packet.Height, Width: packet.Width, Channels: packet.Channels}
			dst, err = ring.Create(w.ringName, shape, 0)
			if err != nil {
				return fmt.Errorf("replay: create ring %s: %w", w.ringName, err)
			}
			defer dst.Unlink()
			firstTimestamp = packet.Timestamp
			startedAt = time.Now()
		}

		targetDelay := time.Duration((packet.Timestamp - firstTimestamp) * float64(time.Second))
		actualDelay := time.Since(startedAt)
		if targetDelay > actualDelay {
			time.Sleep(targetDelay - actualDelay)
		}

		now := float64(time.Now().UnixNano()) / 1e9
		if err := dst.Write(packet.FrameID, now, packet.MathSalt, packet.Flags, packet.Pixels); err != nil {
			w.log.Printf("replay write frame %d: %v", packet.FrameID, err)
		}

		frameIdx++
		if frameIdx%90 == 0 {
			w.log.Printf("replay: %d frames", frameIdx)
		}
	}
}

// Stop signals Run to exit at the next frame boundary and waits for it.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}
