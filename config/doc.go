// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 config 提供采购群聊的配置加载。

配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，环境变量键为
PROCUREMENT_<SECTION>_<FIELD>，例如 PROCUREMENT_CONVERSATION_MAX_MESSAGES。
切片字段使用逗号分隔，时长字段使用 "30s" 形式。

Validate 检查枚举值与跨字段约束（例如 file 存储必须给出路径）。
*/
package config
