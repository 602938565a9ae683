package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dshills/gdbmi/internal/config"
	"github.com/dshills/gdbmi/internal/logging"
)

// cli holds the state shared by the subcommands.
type cli struct {
	v          *viper.Viper
	configPath string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "gdbmi",
		Short: "Drive gdb through its machine interface",
		Long: `gdbmi runs gdb as a subprocess and talks to it over the GDB/MI protocol.

Settings are read from gdbmi.toml in the working directory or the user
config directory, from GDBMI_* environment variables and from flags.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default gdbmi.toml)")
	flags.String("gdb", "", "path of the gdb executable")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: console or json")
	for key, name := range map[string]string{
		config.KeyGDBPath:   "gdb",
		config.KeyLogLevel:  "log-level",
		config.KeyLogFormat: "log-format",
	} {
		if err := c.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newEncodeCmd(),
		newConfigCmd(c),
		newRunCmd(c),
	)
	return rootCmd
}

// load reads the configuration and builds the logger.
func (c *cli) load(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.v, c.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(logging.Config{
		Level:  logging.Level(cfg.Log.Level),
		Format: logging.Format(cfg.Log.Format),
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
