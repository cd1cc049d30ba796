// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 procurement 提供采购审批流程使用的模拟后端工具。

# 概述

所有工具都是确定性的、无副作用的纯函数，用来代替真实的采购、
财务与供应商服务。每个工具既可以直接调用，也可以通过 Definitions
注册到 llm/tools.Registry，由自动参与者在回合中调用。

# 工具分组

  - 需求受理：ExtractFields、ValidateRequired
  - 政策审核：CheckPolicy、ApprovalAuthority
  - 财务审核：CheckBudget、ForecastSpend
  - 供应商风险：LookupVendor、VendorRisk
  - 通用：RequestID
*/
package procurement
