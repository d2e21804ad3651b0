package commands

import (
	"context"
	"fmt"
	"strings"

	"c2fs/pkg/app"
	"c2fs/pkg/ca"
	"c2fs/pkg/config"
	"c2fs/pkg/factory"
	"c2fs/pkg/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用 (测试里可以直接注入)
	C2 *app.App
)

var rootCmd = &cobra.Command{
	Use:           "c2fs",
	Short:         "c2fs: pluggable virtual file storage",
	SilenceUsage:  true,
	SilenceErrors: false,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if C2 != nil {
			return nil
		}
		if err := config.Load(cfgFile); err != nil {
			return err
		}
		cfg, err := config.Decode()
		if err != nil {
			return err
		}
		log, err := logging.Setup(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		C2, err = app.New(cmd.Context(), cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize c2fs: %w", err)
		}
		return nil
	},
}

// Execute 是入口
func Execute() error {
	defer func() {
		if C2 != nil {
			C2.Close()
		}
	}()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.c2fs/config.yaml)")

	// 既可以在 yaml 里写，也可以用 --log-level 覆盖
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	cobra.CheckErr(viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")))
}

// poolRoot 打开一个 ca 对象池，接受 "SPEC" 或 "ca:SPEC"
func poolRoot(ctx context.Context, desc string) (*ca.Root, error) {
	return C2.Factory.Root(ctx, strings.TrimPrefix(desc, factory.PrefixCA))
}
