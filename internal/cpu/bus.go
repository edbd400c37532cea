package cpu

import (
	"sync"

	"github.com/mrc-go/mrc/internal/errs"
)

// MemoryBus is the capability the CPU needs over its 20-bit linear address
// space. It is a capability, not an inheritance root: any type providing
// these two methods can back the CPU's memory, matching the teacher's
// X86Bus interface but narrowed to the 8086's memory half.
type MemoryBus interface {
	Read(addr uint32) (byte, error)
	Write(addr uint32, value byte) error
}

// PortBus is the capability the CPU needs over its 16-bit port space. A
// PortBus may be shared with a host-side observer goroutine (the reference
// LED panel); PortArray below is the strict-discipline implementation that
// makes that safe.
type PortBus interface {
	Read(port uint16) (byte, error)
	Write(port uint16, value byte) error
}

// RAM is a flat MemoryBus backed by a byte slice, the memory kind both this
// package's tests and cmd/mrc-emu load a binary image into.
type RAM struct {
	data []byte
}

// NewRAM allocates a RAM of the given size, covering up to the full 20-bit
// linear address space (1MB).
func NewRAM(size uint32) *RAM {
	return &RAM{data: make([]byte, size)}
}

func (r *RAM) Read(addr uint32) (byte, error) {
	if int(addr) >= len(r.data) {
		return 0, errs.Newf(errs.InvalidAddress, "0x%05X", addr)
	}
	return r.data[addr], nil
}

func (r *RAM) Write(addr uint32, value byte) error {
	if int(addr) >= len(r.data) {
		return errs.Newf(errs.InvalidAddress, "0x%05X", addr)
	}
	r.data[addr] = value
	return nil
}

// LoadAt copies bytes into the RAM starting at addr, the way cmd/mrc-emu
// seeds a loaded binary image before starting the fetch loop.
func (r *RAM) LoadAt(addr uint32, bytes []byte) error {
	if int(addr)+len(bytes) > len(r.data) {
		return errs.Newf(errs.InvalidAddress, "0x%05X", addr)
	}
	copy(r.data[addr:], bytes)
	return nil
}

// PortArray is a fixed-size PortBus guarded by a mutex with strict
// discipline: every Read/Write acquires, performs the single access and
// releases, per spec.md's concurrency model. This is the capability the
// reference LED demo's 8 ports are modeled with; cmd/mrc-emu uses it too.
type PortArray struct {
	mu   sync.Mutex
	data []byte
}

func NewPortArray(n int) *PortArray {
	return &PortArray{data: make([]byte, n)}
}

func (p *PortArray) Read(port uint16) (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(port) >= len(p.data) {
		return 0, errs.Newf(errs.InvalidPort, "0x%04X", port)
	}
	return p.data[port], nil
}

func (p *PortArray) Write(port uint16, value byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(port) >= len(p.data) {
		return errs.Newf(errs.InvalidPort, "0x%04X", port)
	}
	p.data[port] = value
	return nil
}

// Snapshot copies the current port contents out from under the mutex, the
// form a host-side observer goroutine (the LED panel) polls with.
func (p *PortArray) Snapshot() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}
