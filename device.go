package main

import (
	"runtime"
	"runtime/debug"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// MemoryProbe reports the memory currently available to the process.
type MemoryProbe interface {
	Available() (uint64, error)
}

// hostMemory reads available system memory.
type hostMemory struct{}

func (hostMemory) Available() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, errors.Wrap(err, "reading virtual memory stats")
	}
	return vm.Available, nil
}

// Device is the compute device: the host CPU and its memory pool. It
// refuses batches whose estimated working set would exceed the configured
// limit or eat into the free-memory floor, and reclaims memory after a
// refused or failed batch.
type Device struct {
	probe   MemoryProbe
	limit   uint64
	minFree uint64
}

// NewDevice builds a Device from cfg. A nil probe reads host memory.
func NewDevice(cfg DeviceConfig, probe MemoryProbe) (*Device, error) {
	limit, err := cfg.memoryLimit()
	if err != nil {
		return nil, err
	}
	minFree, err := cfg.minFreeMemory()
	if err != nil {
		return nil, err
	}
	if probe == nil {
		probe = hostMemory{}
	}
	return &Device{probe: probe, limit: limit, minFree: minFree}, nil
}

// Admit implements MemoryGuard.
func (d *Device) Admit(bytes uint64) error {
	if d.limit > 0 && bytes > d.limit {
		return errors.Wrapf(ErrResourceExhausted, "batch needs ~%s, limit is %s",
			humanize.Bytes(bytes), humanize.Bytes(d.limit))
	}
	avail, err := d.probe.Available()
	if err != nil {
		// Without a reading, fall back to the static limit alone.
		return nil
	}
	if avail < bytes+d.minFree {
		return errors.Wrapf(ErrResourceExhausted, "batch needs ~%s, %s available",
			humanize.Bytes(bytes), humanize.Bytes(avail))
	}
	return nil
}

// Reclaim forces a garbage collection and returns freed memory to the OS.
func (d *Device) Reclaim() {
	runtime.GC()
	debug.FreeOSMemory()
}

// Describe returns log fields naming the CPU and memory.
func (d *Device) Describe() []zap.Field {
	features := cpuid.CPU.FeatureSet()
	sort.Strings(features)
	fields := []zap.Field{
		zap.String("cpu", cpuid.CPU.BrandName),
		zap.String("vendor", cpuid.CPU.VendorString),
		zap.Int("physical_cores", cpuid.CPU.PhysicalCores),
		zap.Int("logical_cores", cpuid.CPU.LogicalCores),
		zap.Int("gomaxprocs", runtime.GOMAXPROCS(0)),
		zap.Bool("avx2", cpuid.CPU.Supports(cpuid.AVX2)),
		zap.Int("cpu_features", len(features)),
	}
	if avail, err := d.probe.Available(); err == nil {
		fields = append(fields, zap.String("memory_available", humanize.Bytes(avail)))
	}
	if d.limit > 0 {
		fields = append(fields, zap.String("memory_limit", humanize.Bytes(d.limit)))
	}
	return fields
}
