// =============================================================================
// 📦 hitlbridge 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Bridge:    DefaultBridgeConfig(),
		Redis:     DefaultRedisConfig(),
		Webhook:   DefaultWebhookConfig(),
		Database:  DefaultDatabaseConfig(),
		Audit:     DefaultAuditConfig(),
		Auth:      DefaultAuthConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
		MaxConnections:  1024,
	}
}

// DefaultBridgeConfig 返回默认桥接配置
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		DefaultTimeout:  300 * time.Second,
		WaitBuffer:      5 * time.Second,
		DispatchWorkers: 4,
		DispatchQueue:   256,
		ObserverQueue:   1024,
		SendTimeout:     10 * time.Second,
		JanitorInterval: 60 * time.Second,
		JanitorMaxAge:   time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:       false,
		Addr:          "localhost:6379",
		DB:            0,
		PoolSize:      10,
		MinIdleConns:  2,
		ChannelPrefix: "hitl:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "hitlbridge",
		Name:            "hitlbridge",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultAuditConfig 返回默认审计配置
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:         false,
		Backend:         "gorm",
		WriteTimeout:    5 * time.Second,
		AutoMigrate:     false,
		MongoDatabase:   "hitlbridge",
		MongoCollection: "human_request_audit",
	}
}

// DefaultWebhookConfig 返回默认 Webhook 配置
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Enabled: false,
		Timeout: 10 * time.Second,
	}
}

// DefaultAuthConfig 返回默认鉴权配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled: false,
		Issuer:  "",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "hitlbridge",
		SampleRate:   0.1,
	}
}
