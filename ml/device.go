package ml

import (
	"fmt"
	"log/slog"
	"sync"
)

// DeviceKind distinguishes host memory from accelerator memory.
type DeviceKind int

const (
	DeviceCPU DeviceKind = iota
	DeviceGPU
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceCPU:
		return "cpu"
	case DeviceGPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// Device identifies where a tensor's storage lives.
type Device struct {
	Kind DeviceKind
	ID   int
}

// CPU is the host device. The pure-Go backend stores everything here;
// Device values on tensors still track intended placement so casts at the
// wrapper boundary behave like their accelerator counterparts.
var CPU = Device{Kind: DeviceCPU}

func (d Device) String() string {
	if d.Kind == DeviceCPU {
		return "cpu"
	}

	return fmt.Sprintf("%s%d", d.Kind, d.ID)
}

// CacheTrimmer releases cached allocations back to the device. Trims are
// advisory: they bound peak memory and may be skipped without affecting
// correctness.
type CacheTrimmer interface {
	Trim()
}

var trimmers struct {
	sync.Mutex
	fns []CacheTrimmer
}

// RegisterTrimmer adds a trimmer invoked by SoftEmptyCache.
func RegisterTrimmer(t CacheTrimmer) {
	trimmers.Lock()
	defer trimmers.Unlock()
	trimmers.fns = append(trimmers.fns, t)
}

// SoftEmptyCache asks every registered allocator to drop cached blocks.
// Called after large weight dictionaries are released.
func SoftEmptyCache() {
	trimmers.Lock()
	defer trimmers.Unlock()

	slog.Debug("trimming device allocator caches", "trimmers", len(trimmers.fns))
	for _, t := range trimmers.fns {
		t.Trim()
	}
}
