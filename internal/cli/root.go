// Package cli implements fundctl, the FundKeeper admin command line.
package cli

import (
	"io"
	"os"

	"github.com/dmitrijs2005/fundkeeper/internal/logging"
	"github.com/dmitrijs2005/fundkeeper/internal/server/config"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the fundctl command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "fundctl",
		Short:         "FundKeeper admin tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a JSON or YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(newTokenCommand(opts))
	root.AddCommand(newAuditCommand(opts))
	root.AddCommand(newNormalizeCommand())

	return root
}

// loadConfig layers defaults, the optional config file and the environment.
// Server flags are not parsed; fundctl has its own.
func (o *options) loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	if o.configPath != "" {
		if err := config.ApplyFile(cfg, o.configPath); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) logger() logging.Logger {
	return logging.NewJSONLogger(os.Stderr, o.logLevel)
}
