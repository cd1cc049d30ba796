// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 hitl 提供 Human-in-the-Loop 的人工输入边界。

# 概述

当选择器选中人类参与者时，编排器通过 [Boundary.Await] 打开一个输入请求并阻塞，
直到出现以下情况之一：

  - 响应方调用 [Boundary.Respond] 提交文本；
  - 请求超时，返回 HUMAN_TIMEOUT；
  - 请求被 [Boundary.Cancel] 取消或 ctx 结束，返回 HUMAN_CANCELLED。

注册的 [Handler] 会在请求打开时得到通知，命令行中的控制台响应方就是这样读取标准输入的。
[IsExitInput] 判断空输入、纯空白或 exit 这类结束会话的输入。
*/
package hitl
