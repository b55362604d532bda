// Package config 提供 GeoStream 的配置管理功能。
//
// 包含默认值、YAML 文件与 GEOSTREAM_* 环境变量的分层加载、配置验证，
// 以及轮询配置文件并发布新配置的 Reloader。
package config
