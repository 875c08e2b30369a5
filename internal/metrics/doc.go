// 版权所有 2026 hitlbridge Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
人工请求生命周期与投递工作池三个维度。

# 概述

Collector 通过 promauto.With(Registerer) 注册指标，调用方决定注册到
默认 Registry 还是独立 Registry（测试中每个用例使用独立 Registry）。
Collector 实现 hitl.Observer，可直接通过 hitl.WithObserver 挂到 Bridge 上。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 人工请求指标：创建数、按 outcome 分组的结束数、等待时长直方图、
    当前待处理数 Gauge。
  - 入站回复指标：按来源（http/websocket/redis）与是否被接受计数。
  - 投递工作池：活跃 worker、队列长度、拒绝与失败次数，采集时读取。
*/
package metrics
