// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 定义消息生成服务的最小接入层。

# 概述

选择器与自动参与者只依赖 [Provider] 接口：同步补全、健康检查与名称。
请求与响应使用 OpenAI Chat Completions 的形状（[ChatRequest]、
[ChatResponse]、[ToolCall]），具体服务商的差异由 llm/providers 下的
实现吸收。没有全局客户端，每个调用方显式持有自己的 Provider。

# 错误

服务商错误统一为 [*Error]，带 [ErrorCode] 与 Retryable 标记。
[IsRetryable] 供 llm/retry 判断是否退避重试；限流、超时与 5xx 可重试，
鉴权失败与请求错误不可重试。

# 测试

[ProviderFunc] 把普通函数适配成 Provider，测试中用它脚本化生成结果。

# 相关子包

  - llm/providers/openaicompat：OpenAI 兼容 HTTP 实现，带 x/time/rate 限流
  - llm/retry：指数退避重试，以及把生成失败归一为 types.Error
  - llm/tools：工具注册、参数 JSON Schema 与受白名单约束的执行器
*/
package llm
