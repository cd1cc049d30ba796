// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为 SQL 会话记录存储打开 GORM 连接并管理连接池。

# 概述

Open 根据 config.DatabaseConfig 选择 postgres、mysql 或 sqlite 方言，
随后由 PoolManager 设置连接池参数。后台健康检查定时探活，
并把打开与空闲连接数推送给 StatsRecorder（通常是 metrics.Collector）。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB、Ping、Stats、
    ReportStats、Close。
  - PoolConfig：最大空闲连接数、最大打开连接数、生命周期与健康检查间隔。
  - StatsRecorder：连接池统计的接收接口。
*/
package database
