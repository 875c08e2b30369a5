// Copyright (c) hitlbridge Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 hitlbridge HTTP API 的请求处理器。

# 核心类型

  - RequestHandler  — 待处理人工请求的列表、查询、回复提交与手动清理
  - AuditHandler    — 审计记录查询（gorm 或 MongoDB 存储）
  - HealthHandler   — 存活与就绪探针（/health, /healthz, /ready）
  - Response        — 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter  — 包装 http.ResponseWriter 以捕获状态码

# 约定

回复提交只接受 application/json，请求体不超过 1 MB 且拒绝未知字段。
请求已结束或不存在时提交返回 404，不会影响任何等待中的 Agent。
types.ErrorCode 会自动映射到 HTTP 状态码。
*/
package handlers
