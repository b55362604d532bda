// Copyright (c) GeoStream Authors.
// Licensed under the MIT License.

/*
Package types 提供 GeoStream 引擎的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 track、stream、streamer
等上层模块提供统一的帧与网格数据契约，避免循环依赖。

# 核心类型

  - FrameIndex：轨道内帧序号
  - MeshData：单帧解码后的网格数据（位置、切线、UV、颜色、运动向量、索引、批次）
  - VertexInfo：可选顶点流标记
  - Error / ErrorCode：结构化错误体系

# 主要能力

  - 缓冲复用：MeshData.Reset 保留容量，供对象池回收
  - 内存估算：MeshData.SizeBytes 用于帧缓存统计
  - 拓扑校验：MeshData.IsTopologyCompatible 判断两帧能否插值
  - 错误工具链：NewError / WithCause / GetErrorCode / IsErrorCode
*/
package types
