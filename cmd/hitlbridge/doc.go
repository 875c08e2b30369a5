// Copyright (c) hitlbridge Authors.
// Licensed under the MIT License.

/*
Package main 提供 hitlbridge 服务端程序入口。

# 概述

cmd/hitlbridge 把人工介入桥接（hitl.Bridge）与其投递通道、审计存储和
HTTP 接口组装成一个可部署的服务，提供 serve、migrate、health、version
等子命令。

# 核心类型

  - Server      — 组装 bridge、operator hub、Redis 总线、webhook、审计与 HTTP 服务
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 投递：operator websocket hub 总是启用，Redis 总线与 webhook 按配置追加，
    经 hitl.Fanout 合并，任一通道成功即视为送达
  - 回复：REST、websocket 与 Redis 回复频道都汇入 Bridge.SubmitResponse
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、RateLimiter（基于 IP）、JWTAuth（Bearer / access_token）
  - Metrics 服务器：独立端口暴露 /metrics，端口为 0 时挂在 API 端口上
  - 优雅关闭：SIGINT/SIGTERM 取消 errgroup，依次停止 HTTP、hub、清理器与回复监听
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
