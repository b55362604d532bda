// Copyright (c) GeoStream Authors.
// Licensed under the MIT License.

/*
Package streamer 提供几何缓存帧流的全局调度器。

# 概述

Streamer 持有一份固定的后台解码并发预算（MaxReads），在每次 Tick 中
先回收所有已注册流的完成请求，再以持久化的轮询游标在各流之间公平地
派发新请求。调度器只依赖 stream.Stream 契约，不感知具体归档格式。

# 核心类型

  - Streamer：调度器本体，显式构造与关闭，无进程级单例
  - Config：MaxReads 预算，<= 0 时取 runtime.NumCPU()
  - ProgressNotifier：剩余帧数的进度通知协作者
  - LogProgress：基于 zap 与 rate.Limiter 的节流日志实现

# 主要能力

  - 注册管理：RegisterTrack 对重复注册或空流直接 panic（编程错误）
  - 阻塞注销：UnregisterTrack 等待该流全部在途请求排空后释放
  - 公平派发：轮询游标跨 Tick 保留，耗尽的流在本轮跳过
  - 运行时调优：SetMaxReads 从下一次 Tick 起生效，不取消已有请求
  - 并发关闭：Close 通过 errgroup 并行排空所有流
*/
package streamer
