// Package device names the compute device a worker rank is bound to.
package device

import (
	"fmt"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Device is where a rank's collated tensors live.
type Device struct {
	Name     string
	Rank     int
	CPU      string
	Cores    int
	Features []string
}

// Bind assigns rank its device. Every rank of an in-process run shares the
// host CPU, so the device is a named CPU slot carrying the host capabilities.
func Bind(rank int) Device {
	d := Device{
		Name:  fmt.Sprintf("cpu:%d", rank),
		Rank:  rank,
		CPU:   strings.TrimSpace(cpuid.CPU.BrandName),
		Cores: cpuid.CPU.PhysicalCores,
	}
	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.AVX2, "avx2"},
		{cpuid.AVX512F, "avx512f"},
		{cpuid.FMA3, "fma3"},
		{cpuid.ASIMD, "neon"},
	} {
		if cpuid.CPU.Supports(f.id) {
			d.Features = append(d.Features, f.name)
		}
	}
	return d
}

func (d Device) String() string { return d.Name }

// Describe is the one-line summary the train command prints per rank.
func (d Device) Describe() string {
	cpu := d.CPU
	if cpu == "" {
		cpu = "unknown cpu"
	}
	return fmt.Sprintf("%s (%s, %d cores, features=%v)", d.Name, cpu, d.Cores, d.Features)
}
