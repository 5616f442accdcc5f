// Command airlock is a small CLI over the airlock library: scries, pokes,
// spider threads and tailing a subscription, using the connection details in
// ship_config.yaml or the URBIT_SHIP_* environment.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/urbitgo/airlock"
	"github.com/urbitgo/airlock/shipconfig"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "airlock",
		Short:         "Talk to an Urbit ship over its HTTP interface",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to ship_config.yaml")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(initCmd(), scryCmd(), pokeCmd(), spiderCmd(), tailCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "airlock:", err)
		os.Exit(1)
	}
}

func logger() *slog.Logger {
	if !verbose {
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func dial(ctx context.Context) (*airlock.Client, error) {
	cfg, err := shipconfig.Load(configPath)
	if err != nil {
		return nil, err
	}
	var opts []airlock.Option
	if log := logger(); log != nil {
		opts = append(opts, airlock.WithLogger(log))
	}
	return airlock.Dial(ctx, cfg.URL(), cfg.ShipCode, opts...)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a barebones ship_config.yaml to edit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := shipconfig.WriteDefault(configPath); err != nil {
				return err
			}
			fmt.Println("wrote config; edit it with your ship's details")
			return nil
		},
	}
}

func scryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scry <app> <path> <mark>",
		Short: "Read from the ship's namespace",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			body, err := client.Scry(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			os.Stdout.Write(body)
			fmt.Println()
			return nil
		},
	}
}

func pokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poke <app> <mark> <json>",
		Short: "Send a one-shot command to an app",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload json.RawMessage
			if err := json.Unmarshal([]byte(args[2]), &payload); err != nil {
				return fmt.Errorf("payload is not valid JSON: %w", err)
			}

			client, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			ch, err := client.CreateChannel(cmd.Context())
			if err != nil {
				return err
			}
			defer ch.Delete(context.Background())

			return ch.Poke(cmd.Context(), args[0], args[1], payload)
		},
	}
}

func spiderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "spider <input-mark> <thread> <output-mark> <json>",
		Short: "Run a one-shot thread on the ship",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload json.RawMessage
			if err := json.Unmarshal([]byte(args[3]), &payload); err != nil {
				return fmt.Errorf("payload is not valid JSON: %w", err)
			}

			client, err := dial(cmd.Context())
			if err != nil {
				return err
			}
			body, err := client.Spider(cmd.Context(), args[0], args[1], args[2], payload)
			if err != nil {
				return err
			}
			os.Stdout.Write(body)
			fmt.Println()
			return nil
		},
	}
}

func tailCmd() *cobra.Command {
	interval := 500 * time.Millisecond
	cmd := &cobra.Command{
		Use:   "tail <app> <path>",
		Short: "Subscribe to an event stream and print payloads until interrupted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := dial(ctx)
			if err != nil {
				return err
			}
			ch, err := client.CreateChannel(ctx)
			if err != nil {
				return err
			}
			defer ch.Delete(context.Background())

			if _, err := ch.Subscribe(ctx, args[0], args[1]); err != nil {
				return err
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}

				err := ch.ParseEvents(ctx)
				sub, ok := ch.FindSubscription(args[0], args[1])
				if ok {
					for msg, more := sub.PopMessage(); more; msg, more = sub.PopMessage() {
						fmt.Println(string(msg))
					}
				}
				if err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", interval, "poll interval")
	return cmd
}
