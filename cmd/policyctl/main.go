// policyctl: локальная консоль: каталог, черновик политики без API, экспорт.
package main

import (
	"fmt"
	"os"

	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli: общее состояние команд.
type cli struct {
	verbose bool
	plain   bool
	width   int

	cfg    *infra.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "policyctl",
		Short: "AI governance policy toolkit",
		Long: `policyctl works with the policy catalog and the generation engine
without the HTTP API.

Examples:
  policyctl packages
  policyctl types --package professional
  policyctl draft --type ethics --company "Acme Corp" --website acme.io \
      --email legal@acme.io --country Germany --out acme.docx`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			if c.verbose {
				cfg.Logger.Level = "debug"
			}
			logger, err := infra.NewLogger(cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.cfg, c.logger = cfg, logger.Named("policyctl")
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&c.plain, "plain", false, "print raw Markdown without terminal styling")
	root.PersistentFlags().IntVar(&c.width, "width", 100, "word wrap width")

	root.AddCommand(
		newPackagesCmd(c),
		newTypesCmd(c),
		newDraftCmd(c),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
