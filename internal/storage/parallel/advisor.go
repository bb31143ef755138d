// Package parallel computes a safe bound on concurrent workers from CPU
// count and available memory. The bound is a resource-containment measure
// for batch operations (partition writes, range reads, retention sweeps);
// it is never relied on for correctness.
package parallel

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/vejrdk/weatherarchive/internal/logging"
)

var log = logging.Component("parallel")

const (
	lowMemoryMB     = 1024
	reducedMemoryMB = 2048
	reducedScale    = 0.65
	reservedCores   = 2
)

// MemoryProbe reports available memory in bytes. Injectable for tests.
type MemoryProbe func() (uint64, error)

// Advisor computes the advised degree of parallelism.
type Advisor struct {
	cores int
	probe MemoryProbe
	max   int
}

// Option configures an Advisor.
type Option func(*Advisor)

// WithCores overrides the detected logical core count.
func WithCores(n int) Option {
	return func(a *Advisor) { a.cores = n }
}

// WithMemoryProbe overrides the available-memory probe.
func WithMemoryProbe(p MemoryProbe) Option {
	return func(a *Advisor) { a.probe = p }
}

// WithMax caps the advised value. Zero means uncapped.
func WithMax(n int) Option {
	return func(a *Advisor) { a.max = n }
}

// New creates an Advisor backed by the host CPU count and gopsutil's
// virtual-memory statistics.
func New(opts ...Option) *Advisor {
	a := &Advisor{
		cores: logicalCores(),
		probe: hostAvailableMemory,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Compute returns the advised worker count. Baseline is
// max(1, logicalCores-2), scaled down when available memory is low:
// below 1024MB the baseline is halved, below 2048MB it is scaled by 0.65.
// The result is always at least 1.
func (a *Advisor) Compute() int {
	baseline := a.cores - reservedCores
	if baseline < 1 {
		baseline = 1
	}

	advised := baseline
	if avail, err := a.probe(); err == nil {
		switch mb := avail / (1 << 20); {
		case mb < lowMemoryMB:
			advised = baseline / 2
		case mb < reducedMemoryMB:
			advised = int(float64(baseline) * reducedScale)
		}
	} else {
		log.Warn("memory probe failed, using CPU baseline", "error", err)
	}

	if advised < 1 {
		advised = 1
	}
	if a.max > 0 && advised > a.max {
		advised = a.max
	}
	return advised
}

func logicalCores() int {
	return runtime.NumCPU()
}

func hostAvailableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
