package cmd

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"

	"github.com/ThreeDotsLabs/dispatch/topology"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the topology config",
		Long: `Inspect the topology config.

The config file describes channels and endpoints:

  close_timeout: 10s
  channels:
    - name: input
      type: queue       # queue, pubsub or null
      capacity: 100
    - name: output
  endpoints:
    - name: shout
      handler: uppercase
      input: input
      output: output
      selector:
        payload_types: [string]`,
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the config and report all problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadTopologyConfig()
			if err != nil {
				return err
			}

			if err := config.Validate(); err != nil {
				return errors.Wrap(err, "invalid config")
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Config is valid")
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the config which would be used by the run command as yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadTopologyConfig()
			if err != nil {
				return err
			}

			return dumpConfig(config, cmd.OutOrStdout())
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "handlers",
		Short: "List handlers which can be used in the config",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range builtinHandlerNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	})

	rootCmd.AddCommand(configCmd)
}

func dumpConfig(config topology.Config, out io.Writer) error {
	b, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "could not marshal config to yaml")
	}

	_, err = out.Write(b)
	return errors.Wrap(err, "could not write config")
}
