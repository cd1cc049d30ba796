// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 selector 负责在群聊中挑选下一位发言者。

# 概述

Selector 根据参与者描述、最近的对话历史与路由策略组装提示词，
调用一次文本生成能力，把模型输出解析为一个已注册的参与者名称。
模型输出被视为不可信输入：解析失败时会重新提示一次并显式列出合法名称，
再次失败则按确定性规则回退。

# 回退规则

回退时优先选择尚未发言的候选者（按注册顺序），否则选择第一个候选者。
当 AllowRepeatedSpeaker 为 false 时，上一位参与者发言者不会出现在候选列表中。
只剩一个候选者时不调用模型。

Selector 从不写入对话记录。
*/
package selector
