// =============================================================================
// 📦 GeoStream 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Streamer:  DefaultStreamerConfig(),
		Stream:    DefaultStreamConfig(),
		Workers:   DefaultWorkersConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultStreamerConfig 返回默认调度器配置
func DefaultStreamerConfig() StreamerConfig {
	return StreamerConfig{
		MaxReads:         0, // 运行时取 CPU 核数
		ProgressInterval: time.Second,
	}
}

// DefaultStreamConfig 返回默认流配置
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		AlembicPoolCapacity: 8,
		USDPoolCapacity:     10,
	}
}

// DefaultWorkersConfig 返回默认线程池配置
func DefaultWorkersConfig() WorkersConfig {
	return WorkersConfig{
		Workers:   0,
		QueueSize: 256,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:         false,
		Addr:            ":9091",
		Namespace:       "geostream",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "geostream",
		SampleRate:   0.1,
	}
}
