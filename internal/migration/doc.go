// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 SQL 会话记录表 transcript_messages 的 Schema，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌，经 iofs 源驱动交给
golang-migrate。表结构与 transcript.MessageRecord 一致，
(conversation_id, seq) 唯一索引保证同一会话内序号不重复。

# 核心类型

  - Migrator：Up/Down/Steps/Force/Version/Status/Info/Close。
  - DefaultMigrator：Migrator 的默认实现，context 取消时在当前迁移
    完成后停止。
  - CLI：为 migrate 子命令格式化输出。
*/
package migration
