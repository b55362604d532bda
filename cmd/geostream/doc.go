// Copyright (c) GeoStream Authors.
// Licensed under the MIT License.

/*
Package main 提供 GeoStream 演示与压测程序入口。

# 概述

cmd/geostream 用程序化生成的合成轨道驱动完整的流式链路：
Streamer 调度、FrameStream 槽位池、共享解码线程池、帧缓存。
适合在接入真实归档读取器之前观察调度行为与指标。

# 子命令

  - simulate：构建交替格式（Alembic/USD）的合成轨道，预取起始窗口后
    以 60Hz 驱动 Tick，播放头循环前进，记录未就绪帧，结束时打印统计
  - version：显示版本信息
  - help：显示帮助

# 主要能力

  - 配置：YAML + GEOSTREAM_* 环境变量，--config 指定的文件变更后
    通过 config.Reloader 热更新 MaxReads
  - Metrics 服务器：--metrics-addr 或 metrics.enabled 开启 /metrics 与 /healthz
  - 遥测：telemetry.enabled 时解码 span 通过 OTLP/gRPC 导出
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
