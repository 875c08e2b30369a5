// Package telemetry 封装 OpenTelemetry SDK 初始化（OTLP/gRPC 导出 trace 与 metric），
// 并为人工请求的等待链路提供 tracer 和投递队列 gauge。
// 禁用时使用全局 noop 实现，不连接任何外部服务。
package telemetry
