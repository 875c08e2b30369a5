// Copyright (c) hitlbridge Authors.
// Licensed under the MIT License.

/*
包 migration 管理审计表 human_request_audit 的 Schema 迁移，支持
PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 文件通过 embed.FS 内嵌，迁移器按 DatabaseType 选择目录。
SQLite 使用纯 Go 的 modernc.org/sqlite 驱动，无需 CGO。

# 核心类型

  - Migrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info/Close。
  - DefaultMigrator：封装 golang-migrate 实例，ctx 取消时请求优雅停止。
  - CLI：终端输出层，Run 按子命令名分发，供 hitlbridge migrate 使用。
  - NewMigratorFromDatabaseConfig：从 config.DatabaseConfig 创建迁移器。
*/
package migration
