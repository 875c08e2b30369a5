// Copyright (c) hitlbridge Authors.
// Licensed under the MIT License.

/*
Package server 管理 API 与指标两个 HTTP 服务器的生命周期。

Manager 封装 net/http.Server：Start 非阻塞启动，Run 阻塞到 ctx 结束后
在 ShutdownTimeout 内优雅关闭，适合放入 errgroup 与其他后台任务一起运行。
APIConfig 与 MetricsConfig 从 config.ServerConfig 推导监听端口和超时。
*/
package server
