// Copyright (c) hitlbridge Authors.
// Licensed under the MIT License.

/*
包 database 提供审计存储使用的 GORM 连接与连接池管理。

# 核心类型

  - Open / Dialector：按 config.DatabaseConfig 的驱动名选择
    postgres、mysql 或纯 Go sqlite 方言并打开连接。
  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 Ping、Stats、
    Close，并在后台定时探活。
  - PoolConfig：连接池参数，创建时校验。
*/
package database
