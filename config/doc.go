// Package config 提供 hitlbridge 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（HITLBRIDGE_ 前缀）的顺序叠加，
// 覆盖 HTTP 服务、桥接超时与投递池、Redis、数据库、审计、JWT 鉴权、
// 日志和遥测。
package config
