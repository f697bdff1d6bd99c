package cmd

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ThreeDotsLabs/dispatch"
)

var cfgFile string
var logger dispatch.LoggerAdapter = dispatch.NopLogger{}

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "A CLI for running message endpoints.",
	Long: `A CLI for running message endpoints.

Channels and endpoints are described in a config file (see "dispatch config --help").
Messages are read from the standard input and replies are printed on the standard output.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log := viper.GetBool("log")
		debug := viper.GetBool("debug")
		trace := viper.GetBool("trace")
		if log || debug || trace {
			logger = dispatch.NewStdLoggerWithOut(cmd.ErrOrStderr(), debug, trace)
		} else {
			logger = dispatch.NopLogger{}
		}

		return checkRequiredFlags(cmd.Flags())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().SortFlags = false

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dispatch.yaml)")

	outputFlags := pflag.NewFlagSet("output", pflag.ExitOnError)
	outputFlags.BoolP("log", "l", false, "If true, the logger output is sent to stderr. No logger output otherwise.")
	ensure(viper.BindPFlag("log", outputFlags.Lookup("log")))

	outputFlags.BoolP("debug", "d", false, "If true, debug output is enabled from the logger")
	ensure(viper.BindPFlag("debug", outputFlags.Lookup("debug")))

	outputFlags.Bool("trace", false, "If true, trace output is enabled from the logger")
	ensure(viper.BindPFlag("trace", outputFlags.Lookup("trace")))

	rootCmd.PersistentFlags().AddFlagSet(outputFlags)
}

// initConfig finds the topology config file. The file itself is read by topology.LoadConfig.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".dispatch")
	}

	viper.SetEnvPrefix("dispatch")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

func checkRequiredFlags(flags *pflag.FlagSet) error {
	requiredError := false
	flagName := ""

	flags.VisitAll(func(flag *pflag.Flag) {
		requiredAnnotation := flag.Annotations[cobra.BashCompOneRequiredFlag]
		if len(requiredAnnotation) == 0 {
			return
		}

		flagRequired := requiredAnnotation[0] == "true"

		if flagRequired && !flag.Changed {
			requiredError = true
			flagName = flag.Name
		}
	})

	if requiredError {
		return errors.New("Required flag `" + flagName + "` has not been set")
	}

	return nil
}
