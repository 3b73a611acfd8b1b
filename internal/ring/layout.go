package ring

import (
	"encoding/binary"
	"math"
)

// Shape is the H*W*C geometry a ring's slots are sized for.
type Shape struct {
	Height, Width, Channels int
}

// Bytes returns the row-major pixel payload size for the shape.
func (s Shape) Bytes() int {
	return s.Height * s.Width * s.Channels
}

const (
	globalHeaderSize = 8  // write_index u32 @0, capacity u32 @4
	slotHeaderSize   = 24 // see offsets below

	offWriteIndex = 0
	offCapacity   = 4

	offFrameID   = 0
	offTimestamp = 8
	offMathSalt  = 16
	offFlags     = 20
	offReserved  = 21
	offPad       = 23
)

func slotSize(shape Shape) int {
	return slotHeaderSize + shape.Bytes()
}

func totalSize(shape Shape, capacity int) int {
	return globalHeaderSize + slotSize(shape)*capacity
}

func slotOffset(shape Shape, index int) int {
	return globalHeaderSize + index*slotSize(shape)
}

func readGlobalHeader(buf []byte) (writeIndex, capacity uint32) {
	writeIndex = binary.LittleEndian.Uint32(buf[offWriteIndex:])
	capacity = binary.LittleEndian.Uint32(buf[offCapacity:])
	return
}

func writeCapacity(buf []byte, capacity uint32) {
	binary.LittleEndian.PutUint32(buf[offCapacity:], capacity)
}

func writeIndexAt(buf []byte, index uint32) {
	binary.LittleEndian.PutUint32(buf[offWriteIndex:], index)
}

// Header is the decoded 24-byte per-slot metadata block.
type Header struct {
	FrameID   int64
	Timestamp float64
	MathSalt  float32
	Flags     uint8
}

func writeSlotHeader(slot []byte, h Header) {
	binary.LittleEndian.PutUint64(slot[offFrameID:], uint64(h.FrameID))
	binary.LittleEndian.PutUint64(slot[offTimestamp:], math.Float64bits(h.Timestamp))
	binary.LittleEndian.PutUint32(slot[offMathSalt:], math.Float32bits(h.MathSalt))
	slot[offFlags] = h.Flags
	binary.LittleEndian.PutUint16(slot[offReserved:], 0)
	slot[offPad] = 0
}

func readSlotHeader(slot []byte) Header {
	return Header{
		FrameID:   int64(binary.LittleEndian.Uint64(slot[offFrameID:])),
		Timestamp: math.Float64frombits(binary.LittleEndian.Uint64(slot[offTimestamp:])),
		MathSalt:  math.Float32frombits(binary.LittleEndian.Uint32(slot[offMathSalt:])),
		Flags:     slot[offFlags],
	}
}
