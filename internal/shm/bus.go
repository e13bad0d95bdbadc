package shm

import (
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/edsrzf/mmap-go"
	"github.com/yanun0323/errors"

	"main/pkg/exception"
)

// DefaultName is the POSIX shm object name shared with the strategy process.
const DefaultName = "/nowcore_bridge"

const shmDir = "/dev/shm"

// BusSize is the exact byte size of the mapped Bus struct.
const BusSize = int(unsafe.Sizeof(Bus{}))

// Handle owns one mapping of the bus. The gateway opens it with Create and
// unlinks it on Close; strategy-side tools open the existing region with Attach.
type Handle struct {
	file  *os.File
	mem   mmap.MMap
	bus   *Bus
	owner bool
}

// Path resolves a POSIX shm name ("/nowcore_bridge") to its backing file.
func Path(name string) string {
	return filepath.Join(shmDir, strings.TrimPrefix(name, "/"))
}

func pageRound(n int) int {
	page := os.Getpagesize()
	return (n + page - 1) &^ (page - 1)
}

// Create opens (or creates) the named region sized for the bus and maps it
// read/write. Fresh regions come back zero-filled from the kernel; Reset
// must still be called to clear a region left over from a previous run.
func Create(name string) (*Handle, error) {
	f, err := os.OpenFile(Path(name), os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, errors.Wrap(err, "open shm object")
	}
	if err := f.Truncate(int64(pageRound(BusSize))); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "size shm object")
	}
	h, err := mapBus(f, true)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return h, nil
}

// Attach maps an existing region without resizing or unlinking it.
func Attach(name string) (*Handle, error) {
	f, err := os.OpenFile(Path(name), os.O_RDWR, 0o666)
	if err != nil {
		return nil, errors.Wrap(err, "open shm object")
	}
	h, err := mapBus(f, false)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return h, nil
}

func mapBus(f *os.File, owner bool) (*Handle, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat shm object")
	}
	if info.Size() < int64(BusSize) {
		return nil, exception.ErrBusSize
	}
	mem, err := mmap.MapRegion(f, pageRound(BusSize), mmap.RDWR, 0, 0)
	if err != nil {
		return nil, errors.Wrap(err, "map shm object")
	}
	// Page-aligned by mmap, which satisfies the 64-byte frame alignment.
	return &Handle{
		file:  f,
		mem:   mem,
		bus:   (*Bus)(unsafe.Pointer(&mem[0])),
		owner: owner,
	}, nil
}

// Bus returns the mapped bus.
func (h *Handle) Bus() *Bus {
	if h == nil {
		return nil
	}
	return h.bus
}

// Close unmaps the region and, for the creating side, unlinks the name.
func (h *Handle) Close() error {
	if h == nil || h.bus == nil {
		return exception.ErrBusNotOpen
	}
	h.bus = nil
	err := h.mem.Unmap()
	if cerr := h.file.Close(); err == nil {
		err = cerr
	}
	if h.owner {
		if rerr := os.Remove(h.file.Name()); err == nil && !os.IsNotExist(rerr) {
			err = rerr
		}
	}
	return err
}

// Reset forces the ring indices and snapshot into a known state. Called once
// at gateway startup whether the region is fresh or left over from a crash;
// precision fields are repopulated from exchangeInfo afterwards.
func (b *Bus) Reset(nowNs uint64) {
	b.Market.writeIndex.Store(0)
	b.Command.writeIdx.Store(0)
	b.Command.readIdx.Store(0)
	b.Event.writeIdx.Store(0)
	b.Event.readIdx.Store(0)

	b.Account.usdtBalance.Store(0)
	b.Account.positionAmt.Store(0)
	b.Account.avgPrice.Store(0)
	b.Account.pricePrecision.Store(0)
	b.Account.quantityPrecision.Store(0)
	b.Account.strategyStatus.Store(0)

	b.Account.gatewayAlive.Store(1)
	b.Account.strategyAlive.Store(0)
	b.Account.systemHealthNs.Store(nowNs)
}
