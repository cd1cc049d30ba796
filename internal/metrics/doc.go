// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、LLM、对话编排与数据库四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册到默认 Registry。所有指标按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 指标：请求总数、耗时与 Token 用量，由 InstrumentProvider 包装 Provider 记录。
  - 对话指标：运行结束原因、回合数与耗时、选择器决策方式、状态转换、
    人工等待时长与工具调用结果。Collector 实现 conversation.Metrics。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics
