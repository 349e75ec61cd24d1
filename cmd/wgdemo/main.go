// Command wgdemo drives a wgcore device through the wire protocol. A client
// and a server run in one process and talk over net.Pipe; the client uploads
// buffers, reads them back, signals fences and submits command buffers.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/gogpu/wgcore"
	"github.com/gogpu/wgcore/backend"
	_ "github.com/gogpu/wgcore/backend/wgpu"
	"github.com/gogpu/wgcore/internal/config"
	"github.com/gogpu/wgcore/internal/telemetry"
)

const doubleWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] * 2u;
}
`

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		backendArg = flag.String("backend", "", "backend name, overrides the config file")
		metricsOut = flag.String("metrics", "", "write Prometheus metrics to this file (\"-\" for stdout)")
		list       = flag.Bool("list-backends", false, "print the registered backends and exit")
	)
	flag.Parse()

	if *list {
		for _, name := range backend.Available() {
			fmt.Println(name)
		}
		return
	}

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		slog.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		log.Printf("wgdemo: setting GOMAXPROCS: %v", err)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("wgdemo: %v", err)
		}
	}
	if *backendArg != "" {
		cfg.Backend = *backendArg
	}
	if !backend.IsRegistered(cfg.Backend) {
		log.Fatalf("wgdemo: unknown backend %q, registered: %s", cfg.Backend, strings.Join(backend.Available(), ", "))
	}
	if *metricsOut != "" {
		cfg.Metrics = config.Metrics{Enabled: true, Output: *metricsOut}
	}

	level, err := cfg.Level()
	if err != nil {
		log.Fatalf("wgdemo: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	wgcore.SetLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("wgdemo failed", "err", err)
		os.Exit(1)
	}
	if cfg.Metrics.Enabled {
		if err := writeMetrics(cfg.Metrics.Output); err != nil {
			logger.Error("writing metrics", "err", err)
			os.Exit(1)
		}
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	inst, err := wgcore.NewInstance(
		wgcore.WithBackend(cfg.Backend),
		wgcore.WithTimedWaitAny(cfg.TimedWaitAny.Enabled, cfg.TimedWaitAny.MaxCount),
		wgcore.WithCompileWorkers(cfg.CompileWorkers),
	)
	if err != nil {
		return err
	}
	defer inst.Release()
	logger.Info("instance created", "backend", inst.BackendName())

	dev, err := openDevice(inst, logger)
	if err != nil {
		return err
	}
	defer dev.Release()

	if err := buildPipeline(inst, dev, cfg, logger); err != nil {
		return err
	}
	return runLoopback(inst, dev, cfg, logger)
}

// openDevice requests the adapter through WaitAny and the device through
// ProcessEvents.
func openDevice(inst *wgcore.Instance, logger *slog.Logger) (*wgcore.Device, error) {
	var adapter *wgcore.Adapter
	var adapterErr error
	f := inst.RequestAdapter(wgcore.AdapterOptions{}, wgcore.RequestAdapterCallbackInfo{
		Mode: wgcore.CallbackModeWaitAnyOnly,
		Callback: func(s wgcore.RequestAdapterStatus, a *wgcore.Adapter, msg string) {
			if s != wgcore.RequestAdapterStatusSuccess {
				adapterErr = fmt.Errorf("request adapter: %v: %s", s, msg)
				return
			}
			adapter = a
		},
	})
	if s := inst.WaitAny([]wgcore.FutureWaitInfo{{Future: f}}, 0); s != wgcore.WaitStatusSuccess {
		return nil, fmt.Errorf("request adapter: wait: %v", s)
	}
	if adapterErr != nil {
		return nil, adapterErr
	}

	var dev *wgcore.Device
	var devErr error
	done := false
	adapter.RequestDevice(wgcore.DeviceDescriptor{
		Label: "wgdemo",
		DeviceLost: func(r wgcore.DeviceLostReason, msg string) {
			logger.Info("device lost", "reason", r.String(), "message", msg)
		},
	}, wgcore.RequestDeviceCallbackInfo{
		Mode: wgcore.CallbackModeAllowProcessEvents,
		Callback: func(s wgcore.RequestDeviceStatus, d *wgcore.Device, msg string) {
			done = true
			if s != wgcore.RequestDeviceStatusSuccess {
				devErr = fmt.Errorf("request device: %v: %s", s, msg)
				return
			}
			dev = d
		},
	})
	for !done {
		inst.ProcessEvents()
	}
	if devErr != nil {
		return nil, devErr
	}
	info := dev.AdapterInfo()
	logger.Info("device opened", "adapter", info.Name, "type", info.DeviceType)
	return dev, nil
}

// buildPipeline compiles a compute pipeline on the device's workers and
// waits for it with WaitAny.
func buildPipeline(inst *wgcore.Instance, dev *wgcore.Device, cfg *config.Config, logger *slog.Logger) error {
	module, err := dev.CreateShaderModule(wgcore.ShaderModuleDescriptor{Label: "double", WGSL: doubleWGSL})
	if err != nil {
		return err
	}
	defer module.Release()
	layout, err := dev.CreateBindGroupLayout(wgcore.BindGroupLayoutDescriptor{
		Label: "storage",
		Entries: []gputypes.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}},
	})
	if err != nil {
		return err
	}
	defer layout.Release()

	var status wgcore.CreatePipelineAsyncStatus
	var message string
	start := time.Now()
	f := dev.CreateComputePipelineAsync(wgcore.ComputePipelineDescriptor{
		Label:      "double",
		Module:     module,
		EntryPoint: "main",
		Layouts:    []*wgcore.BindGroupLayout{layout},
	}, wgcore.CreateComputePipelineAsyncCallbackInfo{
		Mode: wgcore.CallbackModeWaitAnyOnly,
		Callback: func(s wgcore.CreatePipelineAsyncStatus, p *wgcore.ComputePipeline, msg string) {
			status, message = s, msg
			if p != nil {
				p.Release()
			}
		},
	})

	infos := []wgcore.FutureWaitInfo{{Future: f}}
	if err := waitFuture(inst, infos, cfg); err != nil {
		return err
	}
	if status != wgcore.CreatePipelineAsyncStatusSuccess {
		return fmt.Errorf("compute pipeline: %v: %s", status, message)
	}
	logger.Info("compute pipeline ready", "elapsed", time.Since(start))
	return nil
}

// waitFuture blocks in WaitAny when timed waits are enabled and polls it
// otherwise.
func waitFuture(inst *wgcore.Instance, infos []wgcore.FutureWaitInfo, cfg *config.Config) error {
	timeout := demoTimeout(cfg)
	if cfg.TimedWaitAny.Enabled {
		if s := inst.WaitAny(infos, timeout); s != wgcore.WaitStatusSuccess {
			return fmt.Errorf("wait any: %v", s)
		}
		return nil
	}
	deadline := time.Now().Add(timeout)
	for {
		switch s := inst.WaitAny(infos, 0); s {
		case wgcore.WaitStatusSuccess:
			return nil
		case wgcore.WaitStatusTimedOut:
			if time.Now().After(deadline) {
				return errors.New("wait any: timed out")
			}
			time.Sleep(time.Millisecond)
		default:
			return fmt.Errorf("wait any: %v", s)
		}
	}
}

func demoTimeout(cfg *config.Config) time.Duration {
	if cfg.TimedWaitAny.Timeout > 0 {
		return cfg.TimedWaitAny.Timeout
	}
	return 2 * time.Second
}

func writeMetrics(output string) error {
	if output == "-" {
		telemetry.WritePrometheus(os.Stdout)
		return nil
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	telemetry.WritePrometheus(f)
	return f.Close()
}
