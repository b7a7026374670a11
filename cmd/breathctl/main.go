// breathctl is the control-plane CLI for the breathing kernel: it runs a
// guided session loop, replays the persisted event log, and inspects the
// safety registry.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// #region root
func main() {
	root := &cobra.Command{
		Use:           "breathctl",
		Short:         "Homeostatic breathing-session control kernel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("db", "coherent.db", "path to the SQLite database")
	root.PersistentFlags().String("patterns-dir", "", "directory of YAML pattern files to load and watch")
	root.PersistentFlags().String("sensor-addr", "localhost:50071", "rPPG sensor service address")
	root.PersistentFlags().String("estimator", "filter", "belief estimator: filter | unscented")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	viper.SetEnvPrefix("COHERENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(root.PersistentFlags()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	viper.SetConfigName("coherent")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	root.AddCommand(newRunCmd(), newReplayCmd(), newInspectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// #endregion root

// #region logger
func buildLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if viper.GetBool("debug") {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

// #endregion logger
