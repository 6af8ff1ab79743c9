// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// abachivm runs a single-node Abachi chain and talks to it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abachivm",
		Short: "Run and interact with an Abachi chain",
		Long: `abachivm runs a single-node Abachi chain that builds a block from the
pending transactions every block interval, and submits transactions to a
running node over JSON-RPC.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newRunCmd(),
		newTxCmd(),
		newGenesisCmd(),
	)
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
