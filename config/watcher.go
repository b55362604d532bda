// 配置文件重载器实现。
//
// 轮询配置文件修改时间，变更经防抖后重新加载并验证，
// 通过通道把新配置交给持有调度器的协程应用。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 重载器类型定义 ---

// Reloader polls a config file and publishes every successfully reloaded
// and validated Config on Updates. Invalid edits are logged and skipped;
// the last good config stays in effect.
type Reloader struct {
	mu sync.Mutex

	// 配置
	path          string
	envPrefix     string
	pollInterval  time.Duration
	debounceDelay time.Duration

	// 状态
	running  bool
	stopChan chan struct{}
	done     chan struct{}
	updates  chan *Config
	lastMod  time.Time
	current  *Config
	reloads  int
	failures int

	logger *zap.Logger
}

// --- 重载器选项 ---

// ReloaderOption configures the Reloader
type ReloaderOption func(*Reloader)

// WithPollInterval sets how often the file is checked
func WithPollInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithDebounceDelay sets how long the file must stay unchanged before it
// is reloaded
func WithDebounceDelay(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d >= 0 {
			r.debounceDelay = d
		}
	}
}

// WithReloaderEnvPrefix sets the env prefix applied on every reload
func WithReloaderEnvPrefix(prefix string) ReloaderOption {
	return func(r *Reloader) {
		r.envPrefix = prefix
	}
}

// WithReloaderLogger sets the logger for the reloader
func WithReloaderLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// --- 重载器实现 ---

// NewReloader creates a reloader for path. initial is the config currently
// in effect.
func NewReloader(path string, initial *Config, opts ...ReloaderOption) (*Reloader, error) {
	if path == "" {
		return nil, fmt.Errorf("reloader: config path is empty")
	}
	r := &Reloader{
		path:          path,
		envPrefix:     DefaultEnvPrefix,
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		updates:       make(chan *Config, 1),
		current:       initial,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "config_reloader"))

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
		}
		r.logger.Warn("config file does not exist, will watch for creation", zap.String("path", path))
	}
	return r, nil
}

// Updates delivers reloaded configs. Only the newest pending config is
// kept if the consumer falls behind.
func (r *Reloader) Updates() <-chan *Config {
	return r.updates
}

// Current returns the last config that loaded and validated.
func (r *Reloader) Current() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Start begins polling in the background
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("reloader already running")
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})
	if info, err := os.Stat(r.path); err == nil {
		r.lastMod = info.ModTime()
	}

	go r.pollLoop(ctx, r.stopChan, r.done)

	r.logger.Info("config reloader started",
		zap.String("path", r.path),
		zap.Duration("poll_interval", r.pollInterval))
	return nil
}

// Stop stops polling and waits for the poll goroutine to exit
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	done := r.done
	r.mu.Unlock()

	<-done
	r.logger.Info("config reloader stopped")
}

// IsRunning returns whether the reloader is polling
func (r *Reloader) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Stats returns the number of successful and failed reloads
func (r *Reloader) Stats() (reloads, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloads, r.failures
}

func (r *Reloader) pollLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	// pending is the time a change was first seen; zero when idle.
	var pending time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case now := <-ticker.C:
			if r.changed() {
				pending = now
				continue
			}
			if !pending.IsZero() && now.Sub(pending) >= r.debounceDelay {
				pending = time.Time{}
				r.reload()
			}
		}
	}
}

// changed reports whether the file's modification time moved.
func (r *Reloader) changed() bool {
	info, err := os.Stat(r.path)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if info.ModTime().Equal(r.lastMod) {
		return false
	}
	r.lastMod = info.ModTime()
	return true
}

// reload loads, validates and publishes the file.
func (r *Reloader) reload() {
	cfg, err := NewLoader().
		WithConfigPath(r.path).
		WithEnvPrefix(r.envPrefix).
		WithValidator((*Config).Validate).
		Load()

	r.mu.Lock()
	if err != nil {
		r.failures++
		r.mu.Unlock()
		r.logger.Warn("config reload rejected, keeping previous config",
			zap.String("path", r.path),
			zap.Error(err))
		return
	}
	r.reloads++
	r.current = cfg
	r.mu.Unlock()

	// Replace an unconsumed update rather than block the poll loop.
	select {
	case <-r.updates:
	default:
	}
	r.updates <- cfg

	r.logger.Info("config reloaded", zap.String("path", r.path))
}
