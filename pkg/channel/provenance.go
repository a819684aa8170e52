package channel

import (
	_ "embed"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/bmatthiesen/efficient-global-opt/pkg/container"
)

// Provenance nodes
const (
	GenerationGroup = "/channel_generation"
	SourcePath      = GenerationGroup + "/source code"
	GoVersionPath   = GenerationGroup + "/go version"
	GonumPath       = GenerationGroup + "/gonum version"
	PlatformPath    = GenerationGroup + "/platform"
	MemoryPath      = GenerationGroup + "/memory total"
	StatePath       = GenerationGroup + "/PCG state"
)

//go:embed generator.go
var generatorSource string

// writeProvenance records the generator source and the software and
// machine it ran on
func writeProvenance(f *container.File, logger zerolog.Logger) error {
	platform := Platform()
	entries := [][2]string{
		{SourcePath, generatorSource},
		{GoVersionPath, runtime.Version()},
		{GonumPath, ModuleVersion("gonum.org/v1/gonum")},
		{PlatformPath, platform},
	}

	return f.Atomically(func() error {
		for _, e := range entries {
			if err := container.WriteSlice(f, e[0], []string{e[1]}); err != nil {
				return fmt.Errorf("failed to record %s: %w", e[0], err)
			}
		}
		if vm, err := mem.VirtualMemory(); err != nil {
			logger.Warn().Err(err).Msg("Failed to read memory size, not recorded")
		} else if err := container.WriteSlice(f, MemoryPath, []uint64{vm.Total}); err != nil {
			return err
		}
		return nil
	})
}

// Platform describes the operating system and architecture
func Platform() string {
	parts := []string{runtime.GOOS, runtime.GOARCH}
	if info, err := host.Info(); err == nil {
		for _, s := range []string{info.Platform, info.PlatformVersion, info.KernelVersion, info.KernelArch} {
			if s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "-")
}

// ModuleVersion returns the version of a linked module, or "unknown"
func ModuleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			if dep.Replace != nil {
				return dep.Replace.Version
			}
			return dep.Version
		}
	}
	return "unknown"
}
