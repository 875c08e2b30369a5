// Package tlsutil 提供 Webhook 客户端与 Redis 总线共用的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
