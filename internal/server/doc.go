// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供群聊的只读监控 HTTP 服务。

# 概述

NewRouter 基于 chi 注册以下路由：

  - GET /healthz：探测会话记录存储。
  - GET /metrics：Prometheus 指标。
  - GET /v1/transcript?since=N：序号大于 N 的消息。
  - GET /v1/status：编排器状态与当前运行 ID。

所有路由依次经过 panic 恢复、X-Request-ID、安全响应头、OTel 服务端 span、
请求日志与按路由模板的请求指标。
配置了 JWTConfig 时，/v1 下的路由还要求 Bearer 令牌（HS256 密钥或
RS256 公钥），/healthz 与 /metrics 保持开放。

Manager 封装 net/http.Server 的监听与优雅关闭，Run 阻塞到 context
结束，适合放进 errgroup 与驱动循环并行运行。
*/
package server
