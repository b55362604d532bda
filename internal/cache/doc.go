// 版权所有 2024 GeoStream Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供进程内的帧缓存，将帧序号映射到解码完成的网格数据。

# 概述

FrameCache 由所属的 Stream 持有，Stream 在自身锁内完成所有读写，
因此本包不做额外同步。缓存条目一经写入即与渲染端共享，
不会被回收到缓冲池，也不会被本子系统淘汰。

# 核心类型

  - FrameCache：帧序号 → *types.MeshData 映射，记录命中、未命中与字节占用。
  - Stats：缓存统计信息，包含帧数量、字节数、命中与未命中次数。

# 主要能力

  - 帧读写：Get / Put / Contains / Delete。
  - 内存统计：基于 MeshData.SizeBytes 的近似字节占用。
  - 批量清理：Clear 释放全部条目，供 Stream 关闭时使用。
*/
package cache
