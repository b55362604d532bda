// Copyright (c) GeoStream Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 GeoStream 测试的共享工具和辅助函数。

# 概述

testutil 包为 stream、streamer 等包的单元测试与属性测试提供统一的
辅助能力，避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 帧断言: AssertFramesEqual / AssertFramesMatch / AssertFrameRange
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual / WaitFor /
    WaitForChannel / ReturnsWithin，用于等待后台解码
  - 数据工具: FrameRange / Triangle

# 子包

  - testutil/mocks: MockDecoder，可脚本化的 track.DecodeFunc，支持延迟、
    闸门、协作取消、失败与 panic 注入，并记录调用与并发峰值
  - testutil/fixtures: 预置 Alembic/USD 测试轨道

# 使用示例

	dec := mocks.NewMockDecoder().WithGate()
	trk := fixtures.AlembicTrack(t, 16, dec.Func())
	defer dec.Release()
*/
package testutil
