package app

import (
	"io"

	"github.com/spf13/cobra"
)

// Command はアプリケーションのサブコマンド名を表す。
type Command string

const (
	// CommandSandbox は開発用バックエンドを起動する。
	CommandSandbox Command = "sandbox"
	// CommandOnboard はシナリオファイルに従ってオンボーディングを実行する。
	CommandOnboard Command = "onboard"
	// CommandMigrate はデータベースマイグレーションを実行する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はlingotodayのルートコマンドを生成する。
// ログはwへ出力し、onboardの結果はコマンドの標準出力へ書き込む。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "lingotoday",
		Short:         "LingoToday onboarding and subscription activation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newSandboxCommand(w),
		newOnboardCommand(w),
		newMigrateCommand(w),
		newHealthcheckCommand(),
	)
	return root
}

func newSandboxCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandSandbox),
		Short: "Run the development backend, webhook emulation and metrics server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := InitSandbox(w)
			if err != nil {
				return err
			}
			return runSandbox(cmd.Context(), cfg)
		},
	}
}

func newOnboardCommand(w io.Writer) *cobra.Command {
	var scriptPath string
	cmd := &cobra.Command{
		Use:   string(CommandOnboard),
		Short: "Run the onboarding flow against the backend from a scenario file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario, err := LoadScenario(scriptPath)
			if err != nil {
				return err
			}
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			return runOnboard(cmd.Context(), cfg, scenario, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&scriptPath, "script", "", "path to the scenario YAML file")
	cmd.MarkFlagRequired("script")
	return cmd
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "Apply database migrations (device draft store and/or sandbox)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			return runMigrate(cfg, target)
		},
	}
	cmd.Flags().StringVar(&target, "target", migrateTargetAll, "migration target: device, sandbox or all")
	return cmd
}

func newHealthcheckCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe the sandbox /health endpoint",
		Args:  cobra.NoArgs,
		// 軽量サブコマンドのため、設定の読み込みをスキップする
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(port)
		},
	}
	cmd.Flags().StringVar(&port, "port", envOr("SANDBOX_PORT", "8080"), "sandbox port")
	return cmd
}
