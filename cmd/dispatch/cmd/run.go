package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ThreeDotsLabs/dispatch"
	"github.com/ThreeDotsLabs/dispatch/message"
	"github.com/ThreeDotsLabs/dispatch/metrics"
	"github.com/ThreeDotsLabs/dispatch/topology"
)

func init() {
	addRunCmd(rootCmd)
}

func addRunCmd(parent *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send lines from the stdin through the topology and print the replies",
		Long: `Send every non-empty line from the standard input to the input channel as a message
and print payloads of replies received on the output channel.

Without a config file, a single endpoint running the --handler is connected between
the input and output channels. The output channel must be a queue.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadTopologyConfig()
			if err != nil {
				return err
			}

			options := topology.BuildOptions{}
			if addr := viper.GetString("run.metricsAddr"); addr != "" {
				registry, cancel := metrics.CreateRegistryAndServeHTTP(addr)
				defer cancel()

				builder := metrics.NewPrometheusMetricsBuilder(registry, "dispatch", "")
				options.Metrics = &builder
			}

			top, err := topology.Build(config, builtinHandlers, options, logger)
			if err != nil {
				return errors.Wrap(err, "could not build topology")
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return pipe(
				ctx,
				top,
				viper.GetString("run.input"),
				viper.GetString("run.output"),
				cmd.InOrStdin(),
				cmd.OutOrStdout(),
				viper.GetDuration("run.drainTimeout"),
			)
		},
	}

	cmd.Flags().String("input", "input", "The channel which lines from the stdin are sent to")
	ensure(viper.BindPFlag("run.input", cmd.Flags().Lookup("input")))

	cmd.Flags().String("output", "output", "The queue channel which replies are printed from")
	ensure(viper.BindPFlag("run.output", cmd.Flags().Lookup("output")))

	cmd.Flags().String("handler", "uppercase", fmt.Sprintf(
		"The handler used when there is no config file, one of: %v", builtinHandlerNames(),
	))
	ensure(viper.BindPFlag("run.handler", cmd.Flags().Lookup("handler")))

	cmd.Flags().Duration("drain-timeout", time.Second, "How long to wait for replies after the stdin is closed")
	ensure(viper.BindPFlag("run.drainTimeout", cmd.Flags().Lookup("drain-timeout")))

	cmd.Flags().String("metrics-addr", "", "If set, Prometheus metrics are served at the address on /metrics")
	ensure(viper.BindPFlag("run.metricsAddr", cmd.Flags().Lookup("metrics-addr")))

	parent.AddCommand(cmd)
	return cmd
}

func loadTopologyConfig() (topology.Config, error) {
	if path := viper.ConfigFileUsed(); path != "" {
		if _, err := os.Stat(path); err == nil {
			return topology.LoadConfig(path)
		}
	}

	return defaultTopologyConfig(
		viper.GetString("run.input"),
		viper.GetString("run.output"),
		viper.GetString("run.handler"),
	), nil
}

func defaultTopologyConfig(input, output, handler string) topology.Config {
	return topology.Config{
		Channels: []topology.ChannelConfig{
			{Name: input, Type: topology.ChannelTypeQueue},
			{Name: output, Type: topology.ChannelTypeQueue},
		},
		Endpoints: []topology.EndpointConfig{
			{Name: handler, Handler: handler, Input: input, Output: output},
		},
	}
}

// pipe runs the topology, sends lines from in to the input channel and writes payloads
// of replies from the output queue to out. It returns when in is exhausted and replies
// stopped coming for drainTimeout, or when ctx is done.
func pipe(
	ctx context.Context,
	top *topology.Topology,
	inputName string,
	outputName string,
	in io.Reader,
	out io.Writer,
	drainTimeout time.Duration,
) (err error) {
	input, ok := top.Channel(inputName)
	if !ok {
		return errors.Errorf("unknown input channel %s", inputName)
	}
	output, ok := top.Queue(outputName)
	if !ok {
		return errors.Errorf("output channel %s is not a queue", outputName)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- top.Run(ctx)
	}()

	var printerDone chan struct{}

	defer func() {
		closeErr := top.Close()
		if runErr := <-runErr; runErr != nil && err == nil {
			err = runErr
		}
		if printerDone != nil {
			// output queue is closed with the topology
			<-printerDone
		}
		if closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "could not close topology")
		}
	}()

	select {
	case <-top.Running():
	case <-ctx.Done():
		return nil
	case err := <-runErr:
		// Run failed before all consumers started, the deferred cleanup reports the error
		runErr <- err
		return nil
	}

	var printed int64
	printerDone = make(chan struct{})
	go func() {
		defer close(printerDone)

		for {
			reply, ok := output.Receive(ctx)
			if !ok {
				return
			}

			fmt.Fprintln(out, reply.Payload())
			atomic.AddInt64(&printed, 1)
		}
	}()

	sent, err := sendLines(in, input)
	if err != nil {
		return err
	}

	logger.Debug("Stdin closed, waiting for replies", dispatch.LogFields{"sent": sent})

	waitForReplies(ctx, func() int64 { return atomic.LoadInt64(&printed) }, sent, drainTimeout)

	return nil
}

func sendLines(in io.Reader, input message.Channel) (int64, error) {
	var sent int64

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			logger.Trace("Line is empty, not sending", nil)
			continue
		}

		if !input.Send(message.NewMessage(line)) {
			return sent, errors.New("input channel refused message")
		}
		sent++
	}

	if err := scanner.Err(); err != nil {
		return sent, errors.Wrap(err, "could not read input")
	}

	return sent, nil
}

// waitForReplies returns when every sent line got a reply or no reply came for drainTimeout.
func waitForReplies(ctx context.Context, printed func() int64, sent int64, drainTimeout time.Duration) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	last := printed()
	lastChange := time.Now()

	for last < sent {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if current := printed(); current != last {
			last = current
			lastChange = time.Now()
		} else if time.Since(lastChange) >= drainTimeout {
			return
		}
	}
}
