// =============================================================================
// 采购群聊主入口
// =============================================================================
// 选择器驱动的多智能体采购群聊，支持人工审批介入
//
// 使用方法:
//
//	procurement                              # 运行采购群聊（默认任务）
//	procurement run --task "..."             # 指定初始任务
//	procurement run --config config.yaml     # 指定配置文件
//	procurement calculator "6 times 7"       # 单智能体计算器
//	procurement transcript                   # 打印持久化的会话记录
//	procurement migrate up                   # 运行会话记录表迁移
//	procurement version                      # 显示版本信息
// =============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lachopopov/multiagent-system-demo/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// rootOptions 是所有子命令共享的全局参数
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "procurement",
		Short:         "Procurement selector group chat with a human approver",
		Long:          `Runs a team of procurement agents. A selector picks the next speaker each turn and a human approver is consulted when the reviewer escalates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (YAML)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	runCmd := newRunCmd(opts)
	root.AddCommand(
		runCmd,
		newCalculatorCmd(opts),
		newTranscriptCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)

	// 不带子命令时运行采购群聊
	root.RunE = runCmd.RunE
	root.Flags().AddFlagSet(runCmd.Flags())
	return root
}

// load 按 默认值 → 配置文件 → 环境变量 加载并校验配置
func (o *rootOptions) load() (*config.Config, error) {
	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if o.configPath != "" {
		loader = loader.WithConfigPath(o.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "procurement %s\n", Version)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}
