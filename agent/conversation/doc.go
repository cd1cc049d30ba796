// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 conversation 提供选择器驱动的群聊编排。

# 概述

[Orchestrator] 负责一次运行的完整回合循环：

 1. 以 user 身份追加任务消息，状态进入 RUNNING；
 2. 每个回合先对本次运行窗口求值终止条件，命中则进入 TERMINATED；
 3. 由选择器挑出下一位参与者；
 4. 自动参与者生成一条消息（含工具调用记录）并追加；
 5. 人类参与者进入 AWAITING_HUMAN，经由 hitl 边界等待输入。

空输入、exit、人工超时、Stop 或 ctx 取消都会以 external-request 结束运行，且不追加消息。
选择失败与生成不可用会结束运行、保留对话记录并返回错误。

# 重入

运行结束后可以用新的指令再次调用 [Orchestrator.Run]。对话记录沿用同一个存储，
终止条件只统计新运行窗口内的消息，每次运行分配新的 ULID 运行 ID。

# 观察者

[WithObserver] 注册的回调会收到状态变化、发言者选择与消息追加事件，
命令行借此实时渲染对话。
*/
package conversation
