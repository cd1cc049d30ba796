package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lachopopov/multiagent-system-demo/internal/migration"
)

// =============================================================================
// 🗄️ 会话记录表迁移命令
// =============================================================================

type migrateOptions struct {
	root   *rootOptions
	dbType string
	dbURL  string
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	opts := &migrateOptions{root: root}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQL transcript schema",
		Long: `Applies or rolls back the transcript table migrations.
The database comes from transcript.database in the config unless --db-type and --db-url are given.`,
		Example: `  procurement migrate up
  procurement migrate status --config procurement.yaml
  procurement migrate up --db-type sqlite --db-url "file:data/transcript.db?mode=rwc"
  procurement migrate force 1`,
	}
	cmd.PersistentFlags().StringVar(&opts.dbType, "db-type", "", "Database type: postgres, mysql, sqlite (default: from config)")
	cmd.PersistentFlags().StringVar(&opts.dbURL, "db-url", "", "Database connection URL (default: from config)")

	cmd.AddCommand(
		opts.command("up", "Apply all pending migrations", cobra.NoArgs,
			func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				return cli.RunUp(cmd.Context())
			}),
		opts.command("down", "Roll back the last migration", cobra.NoArgs,
			func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				return cli.RunDown(cmd.Context())
			}),
		opts.command("steps N", "Apply N migrations, or roll back when N is negative", cobra.ExactArgs(1),
			func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				return cli.RunSteps(cmd.Context(), n)
			}),
		opts.command("status", "Show migration status", cobra.NoArgs,
			func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				return cli.RunStatus(cmd.Context())
			}),
		opts.command("version", "Show the current migration version", cobra.NoArgs,
			func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				return cli.RunVersion(cmd.Context())
			}),
		opts.command("force VERSION", "Force set the migration version (use with caution)", cobra.ExactArgs(1),
			func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version number %q", args[0])
				}
				return cli.RunForce(cmd.Context(), version)
			}),
	)
	return cmd
}

// command 创建一个子命令，执行前打开迁移器，执行后关闭
func (o *migrateOptions) command(use, short string, args cobra.PositionalArgs,
	fn func(cmd *cobra.Command, cli *migration.CLI, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := o.migrator()
			if err != nil {
				return fmt.Errorf("failed to create migrator: %w", err)
			}
			defer m.Close()

			cli := migration.NewCLI(m)
			cli.SetOutput(cmd.OutOrStdout())
			return fn(cmd, cli, args)
		},
	}
}

func (o *migrateOptions) migrator() (*migration.DefaultMigrator, error) {
	logger := zap.NewNop()
	if o.dbType != "" && o.dbURL != "" {
		return migration.NewMigratorFromURL(o.dbType, o.dbURL, logger)
	}

	cfg, err := o.root.load()
	if err != nil {
		return nil, err
	}
	logger = initLogger(cfg.Log)

	dbCfg := cfg.Transcript.Database
	if o.dbType != "" {
		dbCfg.Driver = o.dbType
	}
	if err := ensureSQLiteDir(dbCfg); err != nil {
		return nil, err
	}
	return migration.NewMigratorFromDatabaseConfig(dbCfg, logger)
}
