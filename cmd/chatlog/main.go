package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chat_gateway/internal/config"
	"chat_gateway/internal/logging"
	"chat_gateway/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openBuffer).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "chatlog: %v\n", err)
		os.Exit(1)
	}
}

// bufferOpener connects to the record buffer. The returned func releases it.
type bufferOpener func() (*logging.RedisBuffer, func(), error)

func newRootCmd(open bufferOpener) *cobra.Command {
	root := &cobra.Command{
		Use:   "chatlog",
		Short: "Inspect the Chat Gateway chat record buffer",
		Long: "Records are printed one JSON object per line. Redis settings come from\n" +
			"REDIS_ADDR (or .env / CONFIG_FILE).",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSizeCmd(open))
	root.AddCommand(newPeekCmd(open))
	root.AddCommand(newDrainCmd(open))
	root.AddCommand(newClearCmd(open))
	return root
}

func openBuffer() (*logging.RedisBuffer, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.Redis.Enabled() {
		return nil, nil, errors.New("REDIS_ADDR is not set")
	}

	redisCfg := storage.DefaultRedisConfig()
	redisCfg.Address = cfg.Redis.Address
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB

	rc, err := storage.NewRedisClient(redisCfg)
	if err != nil {
		return nil, nil, err
	}

	bufCfg := logging.DefaultRedisBufferConfig()
	bufCfg.QueueKey = cfg.Logging.ChatLogKey
	return logging.NewRedisBuffer(rc.Client(), bufCfg), func() { rc.Close() }, nil
}

func newSizeCmd(open bufferOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Number of buffered records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			n, err := buf.Size(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newPeekCmd(open bufferOpener) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "peek",
		Short: "Print the oldest records without removing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			records, err := buf.Peek(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of records")
	return cmd
}

func newDrainCmd(open bufferOpener) *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Remove and print the oldest records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			ctx := cmd.Context()
			for {
				records, err := buf.Dequeue(ctx, limit)
				if err != nil {
					return err
				}
				if err := printRecords(cmd.OutOrStdout(), records); err != nil {
					return err
				}
				if !all || len(records) == 0 || ctx.Err() != nil {
					return nil
				}
			}
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&limit, "limit", "n", 0, "records per batch (0 means the buffer's batch size)")
	flags.BoolVar(&all, "all", false, "keep draining until the buffer is empty")
	return cmd
}

func newClearCmd(open bufferOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every buffered record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			return buf.Clear(cmd.Context())
		},
	}
}

func printRecords(w io.Writer, records []*logging.ChatRecord) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
