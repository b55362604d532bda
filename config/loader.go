// =============================================================================
// 📦 GeoStream 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("geostream.yaml").
//	    WithEnvPrefix("GEOSTREAM").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/geostream/types"
)

// DefaultEnvPrefix is the environment variable prefix used by NewLoader.
const DefaultEnvPrefix = "GEOSTREAM"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 GeoStream 的完整配置结构
type Config struct {
	// Streamer 调度器配置
	Streamer StreamerConfig `yaml:"streamer" env:"STREAMER"`

	// Stream 单轨道流配置
	Stream StreamConfig `yaml:"stream" env:"STREAM"`

	// Workers 后台解码线程池配置
	Workers WorkersConfig `yaml:"workers" env:"WORKERS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// StreamerConfig 调度器配置
type StreamerConfig struct {
	// 全局并发解码预算，<= 0 表示 CPU 核数
	MaxReads int `yaml:"max_reads" env:"MAX_READS"`
	// 进度日志最小间隔
	ProgressInterval time.Duration `yaml:"progress_interval" env:"PROGRESS_INTERVAL"`
}

// StreamConfig 流配置
type StreamConfig struct {
	// Alembic 轨道槽位数
	AlembicPoolCapacity int `yaml:"alembic_pool_capacity" env:"ALEMBIC_POOL_CAPACITY"`
	// USD 轨道槽位数
	USDPoolCapacity int `yaml:"usd_pool_capacity" env:"USD_POOL_CAPACITY"`
}

// WorkersConfig 后台解码线程池配置
type WorkersConfig struct {
	// 工作协程数，<= 0 表示 CPU 核数
	Workers int `yaml:"workers" env:"WORKERS"`
	// 任务队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否暴露 /metrics
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// Prometheus 命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// Load 从 path 加载并验证配置
func Load(path string) (*Config, error) {
	return NewLoader().
		WithConfigPath(path).
		WithValidator((*Config).Validate).
		Load()
}

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "console"}
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Streamer.MaxReads < 0 {
		errs = append(errs, "streamer.max_reads must not be negative")
	}
	if c.Streamer.ProgressInterval < 0 {
		errs = append(errs, "streamer.progress_interval must not be negative")
	}

	if c.Stream.AlembicPoolCapacity <= 0 {
		errs = append(errs, "stream.alembic_pool_capacity must be positive")
	}
	if c.Stream.USDPoolCapacity <= 0 {
		errs = append(errs, "stream.usd_pool_capacity must be positive")
	}

	if c.Workers.Workers < 0 {
		errs = append(errs, "workers.workers must not be negative")
	}
	if c.Workers.QueueSize < 0 {
		errs = append(errs, "workers.queue_size must not be negative")
	}

	if !slices.Contains(validLogLevels, c.Log.Level) {
		errs = append(errs, fmt.Sprintf("log.level %q is not one of %v", c.Log.Level, validLogLevels))
	}
	if !slices.Contains(validLogFormats, c.Log.Format) {
		errs = append(errs, fmt.Sprintf("log.format %q is not one of %v", c.Log.Format, validLogFormats))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}
	if c.Metrics.Namespace == "" {
		errs = append(errs, "metrics.namespace must not be empty")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, "telemetry.otlp_endpoint is required when telemetry is enabled")
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}
