// 版权所有 2024 GeoStream Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的帧流指标采集能力，覆盖
调度器、解码流与帧缓存三大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
流与缓存指标按 format（alembic / usd）分组。
nil *Collector 上的所有 Record 方法均为空操作。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 指标，按业务域分组管理。

# 主要能力

  - 调度器指标：已注册轨道数、在途读取数、读取预算、剩余帧数、tick 耗时。
  - 流指标：请求派发/拒绝计数、回收状态（decoded/failed/cancelled）、
    后台解码耗时、Prefetch 同步解码次数、取消排空数量。
  - 缓存指标：命中与未命中计数。
*/
package metrics
