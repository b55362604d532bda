// Copyright (c) GeoStream Authors.
// Licensed under the MIT License.

/*
包 server 提供指标 HTTP 服务器的生命周期管理。

# 概述

Manager 封装 net/http.Server，以非阻塞方式启动，并在配置的超时内
优雅关闭。NewMetricsHandler 构建的路由暴露两个端点：

  - /metrics：Prometheus 文本格式，默认读取全局注册表，
    internal/metrics.Collector 的所有指标都注册在那里。
  - /healthz：返回 {"status":"ok"}，可附带调度器统计快照。

配置来自 config.MetricsConfig，经 ConfigFromMetrics 转换。
*/
package server
