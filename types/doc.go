// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供采购审批群聊的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 participant、transcript、
selector、conversation 等上层模块提供统一的类型契约。

# 核心类型

  - Message           — 会话记录中的一条消息（Seq、Sender、Content、ToolInvocations）
  - ToolInvocation    — 一次工具调用及其结果或错误
  - ToolSchema        — 工具定义（name + description + JSON Schema parameters）
  - ToolResult        — 工具执行结果
  - Error / ErrorCode — 结构化错误体系，含 Retryable 标记与 errors.Is 匹配
*/
package types
