// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 transcript 提供只追加的会话记录存储。

# 概述

Store 是会话记录唯一的写入入口：Append 原子地分配下一个序号（从 1 开始，
严格递增且无空洞），Snapshot 返回某一时刻的不可变视图。
读者之间以及读者与写者之间互不影响。

# 存储后端

  - memory — 进程内切片（默认）
  - file   — JSON Lines 追加文件，每次追加 fsync，启动时重新加载
  - redis  — WATCH/MULTI 乐观事务，列表下标即序号
  - sql    — gorm（postgres / mysql / sqlite），事务内分配序号

# Snapshot

Snapshot 提供 Len、Last、Messages、Since（本次运行窗口）、Tail（截断历史）
与 LastFrom 等只读操作。
*/
package transcript
