package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/geostream/config"
	"github.com/BaSui01/geostream/internal/metrics"
	"github.com/BaSui01/geostream/internal/pool"
	"github.com/BaSui01/geostream/internal/server"
	"github.com/BaSui01/geostream/internal/telemetry"
	"github.com/BaSui01/geostream/stream"
	"github.com/BaSui01/geostream/streamer"
	"github.com/BaSui01/geostream/track"
	"github.com/BaSui01/geostream/types"
)

const (
	tickRate  = 60
	lookahead = 30
	meshGrid  = 32
)

// =============================================================================
// ⚙️ simulate 参数
// =============================================================================

type simulateOptions struct {
	configPath    string
	tracks        int
	frames        int
	decodeLatency time.Duration
	duration      time.Duration
	metricsAddr   string
}

func parseSimulateFlags(args []string) (simulateOptions, error) {
	var o simulateOptions
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Path to config file")
	fs.IntVar(&o.tracks, "tracks", 4, "Number of synthetic tracks")
	fs.IntVar(&o.frames, "frames", 240, "Frames per track")
	fs.DurationVar(&o.decodeLatency, "decode-latency", 4*time.Millisecond, "Simulated decode time per frame")
	fs.DurationVar(&o.duration, "duration", 10*time.Second, "Playback duration")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch {
	case o.tracks <= 0:
		return o, fmt.Errorf("--tracks must be positive, got %d", o.tracks)
	case o.frames <= 1:
		return o, fmt.Errorf("--frames must be greater than 1, got %d", o.frames)
	case o.decodeLatency < 0:
		return o, fmt.Errorf("--decode-latency must not be negative")
	case o.duration <= 0:
		return o, fmt.Errorf("--duration must be positive")
	}
	return o, nil
}

func loadConfig(o simulateOptions) (*config.Config, error) {
	loader := config.NewLoader()
	if o.configPath != "" {
		loader = loader.WithConfigPath(o.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = o.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// =============================================================================
// 🎬 播放会话
// =============================================================================

type playback struct {
	track  *track.Track
	stream *stream.FrameStream
	last   types.FrameIndex
	misses int
}

func poolCapacity(cfg config.StreamConfig, f track.Format) int {
	if f == track.FormatUSD {
		return cfg.USDPoolCapacity
	}
	return cfg.AlembicPoolCapacity
}

// buildPlaybacks creates one synthetic track and stream per slot,
// alternating archive formats.
func buildPlaybacks(o simulateOptions, cfg *config.Config, opts ...stream.Option) ([]*playback, error) {
	dec := newProceduralDecoder(meshGrid, o.decodeLatency)

	out := make([]*playback, 0, o.tracks)
	for i := 0; i < o.tracks; i++ {
		format := track.FormatAlembic
		if i%2 == 1 {
			format = track.FormatUSD
		}
		trk, err := track.New(
			fmt.Sprintf("synthetic_%02d", i), format,
			0, types.FrameIndex(o.frames), 30,
			track.SourceHandle{Path: fmt.Sprintf("synthetic://%d", i)},
			dec.Decode,
		)
		if err != nil {
			return nil, err
		}
		st, err := stream.New(trk, stream.Config{PoolCapacity: poolCapacity(cfg.Stream, format)}, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, &playback{track: trk, stream: st, last: -1})
	}
	return out, nil
}

// =============================================================================
// 🖥️ simulate 命令
// =============================================================================

func runSimulate(args []string) error {
	o, err := parseSimulateFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting GeoStream simulation",
		zap.String("version", Version),
		zap.Int("tracks", o.tracks),
		zap.Int("frames", o.frames),
		zap.Duration("decode_latency", o.decodeLatency),
		zap.Duration("duration", o.duration),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	collector := metrics.NewCollector(cfg.Metrics.Namespace, logger)

	workers := pool.NewWorkerPool(pool.WorkerPoolConfig{
		Workers:   cfg.Workers.Workers,
		QueueSize: cfg.Workers.QueueSize,
		PanicHandler: func(r any) {
			logger.Error("decode worker panicked", zap.Any("panic", r))
		},
	})
	defer workers.Close()

	s := streamer.New(
		streamer.Config{MaxReads: cfg.Streamer.MaxReads},
		streamer.WithLogger(logger),
		streamer.WithMetrics(collector),
		streamer.WithProgress(streamer.NewLogProgress(logger, cfg.Streamer.ProgressInterval)),
	)

	playbacks, err := buildPlaybacks(o, cfg,
		stream.WithExecutor(workers),
		stream.WithBufferPool(pool.NewMeshBufferPool()),
		stream.WithLogger(logger),
		stream.WithMetrics(collector),
		stream.WithTracer(otelProviders.Tracer("github.com/BaSui01/geostream/stream")),
	)
	if err != nil {
		return err
	}
	for _, pb := range playbacks {
		s.RegisterTrack(pb.track, pb.stream)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, o.duration)
	defer cancel()

	var metricsSrv *server.Manager
	var srvErrs <-chan error
	if cfg.Metrics.Enabled {
		metricsSrv = server.NewManager(
			server.NewMetricsHandler(nil, func() any { return s.Stats() }),
			server.ConfigFromMetrics(cfg.Metrics),
			logger,
		)
		if err := metricsSrv.Start(); err != nil {
			logger.Warn("metrics server not started", zap.Error(err))
			metricsSrv = nil
		} else {
			srvErrs = metricsSrv.Errors()
		}
	}

	var reloads <-chan *config.Config
	if o.configPath != "" {
		reloader, err := config.NewReloader(o.configPath, cfg, config.WithReloaderLogger(logger))
		if err != nil {
			logger.Warn("config reload disabled", zap.Error(err))
		} else if err := reloader.Start(ctx); err != nil {
			logger.Warn("config reload disabled", zap.Error(err))
		} else {
			defer reloader.Stop()
			reloads = reloader.Updates()
		}
	}

	misses := play(ctx, s, playbacks, reloads, srvErrs, logger)

	snapshot := s.Stats()
	perStream := make([]stream.Stats, len(playbacks))
	for i, pb := range playbacks {
		perStream[i] = pb.stream.Stats()
	}

	var errs []error
	if err := s.Close(); err != nil {
		errs = append(errs, err)
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Metrics.ShutdownTimeout)
	defer shutdownCancel()
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := otelProviders.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown failed", zap.Error(err))
	}

	printStats(os.Stdout, snapshot, playbacks, perStream, misses)
	logger.Info("GeoStream simulation stopped", zap.Int("misses", misses))
	return errors.Join(errs...)
}

// play runs the fixed-rate tick loop until ctx ends. Each tick advances
// the playback head, schedules decodes and reads the displayed frame of
// every track. A miss or an empty queue triggers a prefetch. It returns
// the total cache misses.
func play(ctx context.Context, s *streamer.Streamer, playbacks []*playback,
	reloads <-chan *config.Config, srvErrs <-chan error, logger *zap.Logger) int {

	for _, pb := range playbacks {
		pb.stream.Prefetch(pb.track.StartFrameIndex(), lookahead)
	}

	ticker := time.NewTicker(time.Second / tickRate)
	defer ticker.Stop()

	start := time.Now()
	last := start
	total := 0

	for {
		select {
		case <-ctx.Done():
			return total

		case cfg := <-reloads:
			s.SetMaxReads(cfg.Streamer.MaxReads)
			logger.Info("config reloaded", zap.Int("max_reads", s.MaxReads()))

		case err := <-srvErrs:
			logger.Error("metrics server exited", zap.Error(err))
			srvErrs = nil

		case now := <-ticker.C:
			s.Tick(now.Sub(last))
			last = now

			head := now.Sub(start).Seconds()
			for _, pb := range playbacks {
				frame := pb.track.FrameAtTime(head, true)
				if frame == pb.last {
					continue
				}
				pb.last = frame
				if _, ok := s.TryGetFrameData(pb.track, frame); !ok {
					pb.misses++
					total++
					logger.Debug("frame not ready",
						zap.String("track", pb.track.Name),
						zap.Int("frame", int(frame)),
					)
					// 未命中时从当前帧重新排队，队首会被同步解码
					pb.stream.Prefetch(frame, lookahead)
					continue
				}
				if len(pb.stream.FramesNeeded()) == 0 {
					pb.stream.Prefetch(frame+1, lookahead)
				}
			}
		}
	}
}

func printStats(w io.Writer, st streamer.Stats, playbacks []*playback, perStream []stream.Stats, misses int) {
	fmt.Fprintf(w, "\nticks=%d issued=%d max_reads=%d misses=%d\n\n", st.Ticks, st.Issued, st.MaxReads, misses)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACK\tFORMAT\tCACHED\tBYTES\tCOMPLETED\tFAILED\tCANCELLED\tREJECTED\tMISSES")
	for i, pb := range playbacks {
		ss := perStream[i]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			pb.track.Name, ss.Format, ss.CachedFrames, ss.CacheBytes,
			ss.Completed, ss.Failed, ss.Cancelled, ss.Rejected, pb.misses)
	}
	_ = tw.Flush()
}
