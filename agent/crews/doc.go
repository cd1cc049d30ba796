// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 crews 定义内置团队，并把团队定义构建为参与者注册表。

# 概述

Definition 由若干 Role 组成，每个角色给出名称、供选择器使用的描述、
系统提示以及允许调用的工具子集。Build 为每个自动角色创建一个
assistant.Assistant，人工角色只登记名称与描述，由 hitl 边界应答。

# 内置团队

  - Procurement：intake、policy、finance、vendor_risk、reviewer 五个自动角色
    加 human_proxy_agent 人工审批人，并携带采购流程的选择提示与路由偏好。
  - Calculator：单个计算助手，只能使用五个计算工具。

# 离线生成

OfflineProvider 实现 llm.Provider，按固定规则完成发言者选择与工具调用，
用于没有 API Key 的环境与端到端测试。reviewer 需要人工决定时以
ESCALATE 开头，选择器随后路由到人工审批人。
*/
package crews
