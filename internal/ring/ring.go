// Package ring implements the named shared-memory ring buffer: a
// lock-free single-producer/multi-consumer frame slot protocol backed by
// a memory-mapped region, so a camera worker and any number of readers in
// other processes can share frames without copying them through a queue.
package ring

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	// ErrNotFound is returned by Attach when the named region does not exist.
	ErrNotFound = errors.New("ring: not found")
	// ErrIncompatible is returned by Attach when the caller's shape does not
	// fit the region's declared capacity.
	ErrIncompatible = errors.New("ring: incompatible shape")
	// ErrAlloc is returned by Create on OS allocation failure.
	ErrAlloc = errors.New("ring: allocation failed")
)

const defaultCapacity = 10

func shmPath(name string) string {
	return filepath.Join(os.TempDir(), "bikefit-shm", name)
}

// Ring is one named shared-memory region: a global header followed by a
// fixed number of fixed-size slots.
type Ring struct {
	name     string
	shape    Shape
	capacity int
	buf      []byte
	isOwner  bool
}

// Create allocates a new named region. A stale region with the same name
// is unlinked first. The global header is initialized with write_index=0
// and the given capacity (defaultCapacity if capacity <= 0).
func Create(name string, shape Shape, capacity int) (*Ring, error) {
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	path := shmPath(name)
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	_ = os.Remove(path) // clean up a stale region from a previous run

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAlloc, err)
	}
	defer f.Close()

	size := totalSize(shape, capacity)
	if err := f.Truncate(int64(size)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAlloc, err)
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAlloc, err)
	}

	writeCapacity(buf, uint32(capacity))
	writeIndexAt(buf, 0)

	return &Ring{name: name, shape: shape, capacity: capacity, buf: buf, isOwner: true}, nil
}

// Attach opens an existing region read-only from the reader's perspective
// (the mapping itself is still shared, but the attacher never writes).
// Capacity is read from the global header; slot size is derived from the
// caller-supplied shape.
func Attach(name string, shape Shape) (*Ring, error) {
	path := shmPath(name)
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ring: open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("ring: stat %s: %w", name, err)
	}
	if info.Size() < globalHeaderSize {
		return nil, ErrIncompatible
	}

	hdrBuf, err := unix.Mmap(int(f.Fd()), 0, globalHeaderSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("ring: map header %s: %w", name, err)
	}
	_, capacity := readGlobalHeader(hdrBuf)
	_ = unix.Munmap(hdrBuf)

	size := totalSize(shape, int(capacity))
	if int64(size) > info.Size() {
		return nil, ErrIncompatible
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("ring: map %s: %w", name, err)
	}

	return &Ring{name: name, shape: shape, capacity: int(capacity), buf: buf, isOwner: false}, nil
}

// Name reports the ring's shared-memory name.
func (r *Ring) Name() string { return r.name }

// Capacity reports the slot count.
func (r *Ring) Capacity() int { return r.capacity }

func (r *Ring) writeIndexPtr() *uint32 {
	return (*uint32)(unsafe.Pointer(&r.buf[offWriteIndex]))
}

// Write computes next = (write_index + 1) mod capacity and writes pixels,
// then header, then publishes the new write_index — in that mandatory
// order, so a slot only becomes the latest once its pixels and header are
// both in place. A reader still copying a slot that is being overwritten
// can see new pixels under the old header; ReadLatest's header re-read
// catches this only if the new header lands before that re-read.
func (r *Ring) Write(frameID int64, timestamp float64, salt float32, flags uint8, pixels []byte) error {
	if len(pixels) != r.shape.Bytes() {
		return fmt.Errorf("ring: write %s: expected %d pixel bytes, got %d", r.name, r.shape.Bytes(), len(pixels))
	}

	current := atomic.LoadUint32(r.writeIndexPtr())
	next := (current + 1) % uint32(r.capacity)

	slot := r.buf[slotOffset(r.shape, int(next)) : slotOffset(r.shape, int(next))+slotSize(r.shape)]

	copy(slot[slotHeaderSize:], pixels)
	writeSlotHeader(slot, Header{FrameID: frameID, Timestamp: timestamp, MathSalt: salt, Flags: flags})

	atomic.StoreUint32(r.writeIndexPtr(), next)
	return nil
}

// ReadLatest samples write_index and returns a copy of the indicated
// slot's header and pixels. The header is re-read after copying the
// pixels; if frame_id changed between the two reads the slot was being
// overwritten concurrently and the read is retried once, matching the
// seqlock-style tear detection the ring protocol relies on.
func (r *Ring) ReadLatest() (Header, []byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		idx := atomic.LoadUint32(r.writeIndexPtr())
		start := slotOffset(r.shape, int(idx))
		slot := r.buf[start : start+slotSize(r.shape)]

		before := readSlotHeader(slot)
		pixels := make([]byte, r.shape.Bytes())
		copy(pixels, slot[slotHeaderSize:])
		after := readSlotHeader(slot)

		if before.FrameID == after.FrameID {
			return after, pixels, nil
		}
	}
	// After two detected tears, take one more read of the current slot and
	// return it without checking it for a tear.
	idx := atomic.LoadUint32(r.writeIndexPtr())
	start := slotOffset(r.shape, int(idx))
	slot := r.buf[start : start+slotSize(r.shape)]
	pixels := make([]byte, r.shape.Bytes())
	copy(pixels, slot[slotHeaderSize:])
	return readSlotHeader(slot), pixels, nil
}

// Close unmaps the region without removing it. Non-owning attachers call
// this on detach.
func (r *Ring) Close() error {
	if r.buf == nil {
		return nil
	}
	err := unix.Munmap(r.buf)
	r.buf = nil
	return err
}

// Unlink removes the named region. Owner-only: the creator unlinks on
// exit, and hot-swap replaces the old ring only after the new one's
// handshake has gone out.
func (r *Ring) Unlink() error {
	if !r.isOwner {
		return fmt.Errorf("ring: unlink %s: not owner", r.name)
	}
	if err := r.Close(); err != nil {
		return err
	}
	if err := os.Remove(shmPath(r.name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ForceUnlink removes a named region by name alone, without requiring an
// attached Ring or ownership. Used by the orchestrator's "ring cleanup on
// restart" step, which tolerates the region already being gone.
func ForceUnlink(name string) error {
	if err := os.Remove(shmPath(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
