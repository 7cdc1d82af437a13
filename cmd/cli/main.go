package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"distritree/pkg/client"
)

func main() {
	var serverAddr string

	rootCmd := &cobra.Command{
		Use:   "distritree-cli",
		Short: "Command line client for the distritree B+ Tree server",
		Long: `Talks to a distritree server over the binary TCP protocol. Every lookup
prints the nodes it touched so indexed and linear costs can be compared.`,
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:9090", "distritree TCP server address")

	// connect is shared by every subcommand.
	connect := func() (*client.Client, error) {
		cli, err := client.Dial(serverAddr)
		if err != nil {
			return nil, fmt.Errorf("connection failed: %w (is the server running? try go run ./cmd/server)", err)
		}
		return cli, nil
	}

	rootCmd.AddCommand(
		newInsertCmd(connect),
		newSearchCmd(connect),
		newRangeCmd(connect),
		newTreeCmd(connect),
		newClearCmd(connect),
		newReplCmd(connect, &serverAddr),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
