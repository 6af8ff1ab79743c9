// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/luxfi/ids"
	"github.com/spf13/cobra"

	"github.com/luxfi/abachi/utils/rpc"
	"github.com/luxfi/abachi/vms/abachivm/api"
	"github.com/luxfi/abachi/vms/abachivm/txs"
)

var errMissingType = errors.New("--type is required")

type txFlags struct {
	endpoint string
	typ      string
	sender   string
	payload  string
	timeout  time.Duration
}

func newTxCmd() *cobra.Command {
	flags := &txFlags{}
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Submit a transaction to a running node",
		Example: `  abachivm tx --type staking.rebase --sender <address>
  abachivm tx --type ledger.transfer --sender <address> \
    --payload '{"token":"<address>","to":"<address>","amount":"1000000000"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reply, err := issueTx(cmd.Context(), flags)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), reply.TxID)
			return err
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&flags.endpoint, "endpoint", "http://127.0.0.1:9650/ext/bc/abachi", "node RPC endpoint")
	fs.StringVar(&flags.typ, "type", "", "transaction type, <component>.<op>")
	fs.StringVar(&flags.sender, "sender", "", "sender address")
	fs.StringVar(&flags.payload, "payload", "", "JSON payload")
	fs.DurationVar(&flags.timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func issueTx(ctx context.Context, flags *txFlags) (*api.IssueTxReply, error) {
	if flags.typ == "" {
		return nil, errMissingType
	}
	sender, err := ids.ShortFromString(flags.sender)
	if err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", flags.sender, err)
	}
	var payload any
	if flags.payload != "" {
		payload = json.RawMessage(flags.payload)
	}
	tx, err := txs.New(flags.typ, sender, payload)
	if err != nil {
		return nil, err
	}
	uri, err := url.Parse(flags.endpoint)
	if err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	reply := &api.IssueTxReply{}
	err = rpc.SendJSONRequest(
		ctx,
		http.DefaultClient,
		uri,
		api.Name+".issueTx",
		&api.IssueTxArgs{Tx: tx.Bytes()},
		reply,
	)
	return reply, err
}
