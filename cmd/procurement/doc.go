// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供采购群聊的命令行入口。

# 概述

cmd/procurement 基于 cobra 组织子命令，加载 YAML 配置与环境变量，
创建 zap 日志、Prometheus 指标、OTel 追踪和会话记录存储，然后在终端上
驱动选择器群聊。每次运行结束后报告终止原因，并提示输入下一条指令；
空行、exit 或输入结束时退出。

# 子命令

  - run（默认）：采购团队，--task 指定初始任务，--once 只运行一次
  - calculator：单智能体计算器，问题来自参数或标准输入
  - transcript：打印 file、redis、sql 后端中持久化的会话记录
  - migrate：up、down、steps、status、version、force
  - version：构建信息，Version、BuildTime、GitCommit 通过 ldflags 注入

# 终端交互

renderer 在终端上用 lipgloss 着色并以 glamour 渲染 Markdown，输出不是
终端或指定 --plain 时输出纯文本。console 是标准输入的唯一读取者，驱动
循环与人工审批共用。Ctrl+C 取消当前运行，在指令提示处则结束会话。

server.enabled 为真时，监控 HTTP 服务与驱动循环在同一个 errgroup 中运行，
会话结束后随之关闭。
*/
package main
