package ffmpeg

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Capabilities probes which filters are actually usable, not just listed.
// Each probe runs a tiny lavfi graph to the null muxer; a filter compiled in
// without a working driver fails here instead of mid-render. Probes run once
// per process.
type Capabilities struct {
	runner *Runner
	logger *slog.Logger

	filtersOnce sync.Once
	filters     map[string]bool

	cudaOnce sync.Once
	cuda     bool

	scaleOnce sync.Once
	scale     string

	openclOnce sync.Once
	opencl     bool

	dumpOnce sync.Once
}

// NewCapabilities creates a prober using the given ffmpeg runner.
func NewCapabilities(runner *Runner, logger *slog.Logger) *Capabilities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capabilities{runner: runner, logger: logger}
}

// listedFilters parses `ffmpeg -filters` into a name set.
func (c *Capabilities) listedFilters(ctx context.Context) map[string]bool {
	c.filtersOnce.Do(func() {
		c.filters = map[string]bool{}
		probeCtx, cancel := context.WithTimeout(ctx, smokeTimeout)
		defer cancel()
		out, err := c.runner.Output(probeCtx, []string{"-hide_banner", "-filters"})
		if err != nil {
			c.logger.Warn("listing filters failed", slog.Any("error", err))
			return
		}
		for _, line := range strings.Split(string(out), "\n") {
			fields := strings.Fields(line)
			// " T.C overlay_cuda VV->V  Overlay one video on top of another"
			if len(fields) >= 2 && strings.Contains(line, "->") {
				c.filters[fields[1]] = true
			}
		}
	})
	return c.filters
}

// HasFilter reports whether name appears in the filter listing.
func (c *Capabilities) HasFilter(ctx context.Context, name string) bool {
	return c.listedFilters(ctx)[name]
}

// HasCUDAFilters reports whether the CUDA overlay path works end to end:
// hwupload_cuda feeding overlay_cuda on a live device.
func (c *Capabilities) HasCUDAFilters(ctx context.Context) bool {
	c.cudaOnce.Do(func() {
		listed := c.listedFilters(ctx)
		if !listed["overlay_cuda"] || !listed["hwupload_cuda"] {
			return
		}
		graph := "color=c=black:s=64x64:d=0.1:r=10,format=nv12,hwupload_cuda[b];" +
			"color=c=white:s=32x32:d=0.1:r=10,format=nv12,hwupload_cuda[f];" +
			"[b][f]overlay_cuda=x=0:y=0"
		c.cuda = c.smoke(ctx, graph) == nil
		c.logResult("overlay_cuda", c.cuda)
	})
	return c.cuda
}

// PreferredCUDAScaleFilter returns the working GPU scale filter name,
// preferring scale_cuda over scale_npp, or "" when neither works.
func (c *Capabilities) PreferredCUDAScaleFilter(ctx context.Context) string {
	c.scaleOnce.Do(func() {
		for _, name := range []string{"scale_cuda", "scale_npp"} {
			if !c.listedFilters(ctx)[name] {
				continue
			}
			graph := "color=c=black:s=64x64:d=0.1:r=10,format=nv12,hwupload_cuda," +
				name + "=32:32"
			if c.smoke(ctx, graph) == nil {
				c.scale = name
				break
			}
		}
		c.logResult("gpu scale", c.scale != "")
	})
	return c.scale
}

// HasGPUScaleFilters reports whether any GPU scale filter works.
func (c *Capabilities) HasGPUScaleFilters(ctx context.Context) bool {
	return c.PreferredCUDAScaleFilter(ctx) != ""
}

// HasOpenCLFilters reports whether the OpenCL filter path initializes.
func (c *Capabilities) HasOpenCLFilters(ctx context.Context) bool {
	c.openclOnce.Do(func() {
		if !c.listedFilters(ctx)["avgblur_opencl"] {
			return
		}
		graph := "color=c=black:s=64x64:d=0.1:r=10,format=yuv420p,hwupload,avgblur_opencl,hwdownload,format=yuv420p"
		args := []string{
			"-hide_banner", "-loglevel", "error",
			"-init_hw_device", "opencl=ocl", "-filter_hw_device", "ocl",
			"-f", "lavfi", "-i", "nullsrc=s=64x64:d=0.1",
			"-filter_complex", graph,
			"-frames:v", "1", "-f", "null", "-",
		}
		probeCtx, cancel := context.WithTimeout(ctx, smokeTimeout)
		defer cancel()
		c.opencl = c.runner.Run(probeCtx, args) == nil
		c.logResult("opencl", c.opencl)
	})
	return c.opencl
}

// smoke renders one frame of the given lavfi graph to the null muxer.
func (c *Capabilities) smoke(ctx context.Context, graph string) error {
	probeCtx, cancel := context.WithTimeout(ctx, smokeTimeout)
	defer cancel()
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "nullsrc=s=64x64:d=0.1:r=10",
		"-filter_complex", graph,
		"-frames:v", "1", "-f", "null", "-",
	}
	return c.runner.Run(probeCtx, args)
}

func (c *Capabilities) logResult(name string, ok bool) {
	c.logger.Debug("capability probe", slog.String("capability", name), slog.Bool("usable", ok))
}

// Summary is a JSON-friendly snapshot of all probed capabilities, for the
// capabilities subcommand and the one-time diagnostic dump.
type Summary struct {
	CUDAOverlay bool   `json:"cuda_overlay"`
	GPUScale    string `json:"gpu_scale_filter,omitempty"`
	OpenCL      bool   `json:"opencl"`
}

// Probe runs all probes and returns a snapshot. The first call logs the
// outcome once at info level.
func (c *Capabilities) Probe(ctx context.Context) Summary {
	s := Summary{
		CUDAOverlay: c.HasCUDAFilters(ctx),
		GPUScale:    c.PreferredCUDAScaleFilter(ctx),
		OpenCL:      c.HasOpenCLFilters(ctx),
	}
	c.dumpOnce.Do(func() {
		c.logger.Info("filter capabilities",
			slog.Bool("cuda_overlay", s.CUDAOverlay),
			slog.String("gpu_scale", s.GPUScale),
			slog.Bool("opencl", s.OpenCL),
		)
	})
	return s
}
