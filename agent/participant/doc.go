// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 participant 维护群聊中可被选为下一位发言者的参与者名册。

# 概述

Registry 按注册顺序保存参与者（自动参与者与人类参与者），名称唯一。
运行开始后名册被封存（Seal），此后不可再修改，选择器与编排器只读取它。

# 核心接口

  - Participant — 名称、角色描述、类型（automated / human）、可用工具集合、实现
  - Agent       — 自动参与者根据会话记录生成一条回复
  - Registry    — Register / DescribeAll / Resolve / Names / Seal
*/
package participant
