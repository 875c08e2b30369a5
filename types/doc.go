// Copyright (c) hitlbridge Authors.
// Licensed under the MIT License.

/*
Package types 提供 hitlbridge 各层共享的基础类型。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 hitl、api、cmd
等上层模块提供统一的类型契约，避免循环依赖。

# 核心类型

  - ToolSchema / ToolFunc — 交给 Agent 工具调用框架的工具描述与 JSON 调用签名
  - JSONSchema            — 工具参数的 JSON Schema 构建器
  - Error / ErrorCode     — 结构化错误，含 HTTP 状态码与 Retryable 标记
  - Context 传播          — WithRequestID / WithTraceID / WithOperator
*/
package types
