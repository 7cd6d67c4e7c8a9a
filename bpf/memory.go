package bpf

import (
	"encoding/binary"
	"fmt"
)

const (
	// StackSize is the size of the private per-invocation stack.
	StackSize = 512

	StackAddr  uint64 = 1 << 32
	MemAddr    uint64 = 2 << 32
	PacketAddr uint64 = 3 << 32

	// NumRegions is the size of the region table; region 0 is never mapped.
	NumRegions = 4

	regionStack  = 1
	regionMem    = 2
	regionPacket = 3

	maxRegionSize = 1<<32 - 1
)

// RegionTable maps the high 32 bits of a virtual address to the host memory
// backing it.
type RegionTable [NumRegions][]byte

// Translate returns the size bytes at virtual address addr. It fails unless
// the whole range lies inside one mapped region.
func (t *RegionTable) Translate(addr uint64, size int) ([]byte, bool) {
	hi := addr >> 32
	if hi >= NumRegions {
		return nil, false
	}

	region := t[hi]
	lo := addr & 0xffffffff

	if lo+uint64(size) > uint64(len(region)) {
		return nil, false
	}

	return region[lo : lo+uint64(size)], true
}

// Memory is the view of caller buffers a program runs against.
//
// Base is the value r1 starts with. DataStart and DataEnd bound the packet
// used by the legacy absolute and indirect loads.
type Memory interface {
	Base() uint64
	DataStart() uint64
	DataEnd() uint64
	// Regions returns the caller-owned part of the region table. The stack
	// region is filled in by the execution context.
	Regions() RegionTable
}

// BufferMemory exposes a single buffer that is both the generic memory and the
// packet.
type BufferMemory struct {
	buf []byte
}

// NewBufferMemory maps buf at MemAddr. A nil buf is an empty region.
func NewBufferMemory(buf []byte) (*BufferMemory, error) {
	if uint64(len(buf)) > maxRegionSize {
		return nil, fmt.Errorf("%w: memory is %d bytes", ErrBufferTooLarge, len(buf))
	}

	return &BufferMemory{buf: buf}, nil
}

func (m *BufferMemory) Base() uint64      { return MemAddr }
func (m *BufferMemory) DataStart() uint64 { return MemAddr }
func (m *BufferMemory) DataEnd() uint64   { return MemAddr + uint64(len(m.buf)) }

func (m *BufferMemory) Regions() RegionTable {
	var t RegionTable
	t[regionMem] = m.buf

	return t
}

// MetadataMemory exposes a metadata buffer at MemAddr, which is what r1 points
// to, and a packet at PacketAddr. The metadata buffer carries the virtual
// addresses of the packet's bounds.
type MetadataMemory struct {
	meta      []byte
	packet    []byte
	dataStart uint64
	dataEnd   uint64
}

// NewMetadataMemory reads the packet bounds out of meta at dataOff and
// dataEndOff and checks that they describe a sub-range of packet.
func NewMetadataMemory(packet, meta []byte, dataOff, dataEndOff int) (*MetadataMemory, error) {
	if uint64(len(packet)) > maxRegionSize || uint64(len(meta)) > maxRegionSize {
		return nil, fmt.Errorf("%w: packet is %d bytes, metadata is %d bytes", ErrBufferTooLarge, len(packet), len(meta))
	}

	if !fieldFits(meta, dataOff) || !fieldFits(meta, dataEndOff) {
		return nil, fmt.Errorf("%w: packet bound offsets %d and %d do not fit a %d byte metadata buffer",
			ErrOutOfBounds, dataOff, dataEndOff, len(meta))
	}

	start := binary.LittleEndian.Uint64(meta[dataOff:])
	end := binary.LittleEndian.Uint64(meta[dataEndOff:])

	if start < PacketAddr || start > end || end > PacketAddr+uint64(len(packet)) {
		return nil, fmt.Errorf("%w: packet bounds [%#x, %#x) are outside the %d byte packet",
			ErrOutOfBounds, start, end, len(packet))
	}

	return &MetadataMemory{
		meta:      meta,
		packet:    packet,
		dataStart: start,
		dataEnd:   end,
	}, nil
}

// NewFixedMetadataMemory builds the metadata buffer itself, large enough to
// hold both bound fields, and points them at the whole packet.
func NewFixedMetadataMemory(packet []byte, dataOff, dataEndOff int) (*MetadataMemory, error) {
	if dataOff < 0 || dataEndOff < 0 {
		return nil, fmt.Errorf("%w: negative packet bound offset", ErrOutOfBounds)
	}

	meta := make([]byte, max(dataOff, dataEndOff)+8)
	PutPacketBounds(meta, dataOff, dataEndOff, len(packet))

	return NewMetadataMemory(packet, meta, dataOff, dataEndOff)
}

// PutPacketBounds writes the virtual addresses of a packetLen byte packet into
// meta at dataOff and dataEndOff.
func PutPacketBounds(meta []byte, dataOff, dataEndOff, packetLen int) {
	binary.LittleEndian.PutUint64(meta[dataOff:], PacketAddr)
	binary.LittleEndian.PutUint64(meta[dataEndOff:], PacketAddr+uint64(packetLen))
}

func (m *MetadataMemory) Base() uint64      { return MemAddr }
func (m *MetadataMemory) DataStart() uint64 { return m.dataStart }
func (m *MetadataMemory) DataEnd() uint64   { return m.dataEnd }

func (m *MetadataMemory) Regions() RegionTable {
	var t RegionTable
	t[regionMem] = m.meta
	t[regionPacket] = m.packet

	return t
}

// Metadata returns the metadata buffer.
func (m *MetadataMemory) Metadata() []byte { return m.meta }

func fieldFits(buf []byte, off int) bool {
	return off >= 0 && off+8 <= len(buf)
}
