// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package abachivm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/stretchr/testify/require"

	luxvm "github.com/luxfi/abachi"
	"github.com/luxfi/abachi/utils/units"
	"github.com/luxfi/abachi/vms/abachivm/api"
	"github.com/luxfi/abachi/vms/abachivm/config"
	"github.com/luxfi/abachi/vms/abachivm/genesis"
	"github.com/luxfi/abachi/vms/abachivm/protocol"
	"github.com/luxfi/abachi/vms/abachivm/txs"
)

var (
	genesisTime = time.Unix(1_700_000_000, 0)

	tenThousandDai = uint256.MustFromDecimal("10000000000000000000000")
	thousandAbi    = uint256.NewInt(1000 * units.Abi)
)

func createTestVM(t *testing.T, db database.Database, cfg config.Config) (*VM, chan luxvm.Message) {
	require := require.New(t)

	toEngine := make(chan luxvm.Message, 1)
	g := genesis.Default()
	genesisBytes, err := g.Bytes()
	require.NoError(err)

	vm := New(cfg, log.NewNoOpLogger())
	require.NoError(vm.Initialize(context.Background(), &luxvm.Config{
		DB:           db,
		GenesisBytes: genesisBytes,
		Metrics:      metric.NewRegistry(),
		ToEngine:     toEngine,
	}))
	require.NoError(vm.SetState(context.Background(), luxvm.NormalOp))
	return vm, toEngine
}

func newTestVM(t *testing.T) *VM {
	vm, _ := createTestVM(t, memdb.New(), config.DefaultConfig())
	t.Cleanup(func() {
		require.NoError(t, vm.Shutdown(context.Background()))
	})
	return vm
}

func issue(t *testing.T, vm *VM, typ string, sender ids.ShortID, payload any) ids.ID {
	tx, err := txs.New(typ, sender, payload)
	require.NoError(t, err)
	txID, err := vm.IssueTx(tx.Bytes())
	require.NoError(t, err)
	return txID
}

// depositAndStake issues the transactions turning faucet DAI into staked ABI.
func depositAndStake(t *testing.T, vm *VM) []ids.ID {
	var (
		faucet    = genesis.Faucet
		treasury  = vm.protocol.Treasury.Address()
		stakingID = vm.protocol.Staking.Address()
		base      = vm.protocol.Base.Address()
	)
	return []ids.ID{
		issue(t, vm, txs.LedgerApprove, faucet, &txs.ApprovePayload{Token: genesis.DAI, Spender: treasury, Amount: tenThousandDai}),
		issue(t, vm, txs.Deposit, faucet, &txs.DepositPayload{Token: genesis.DAI, Amount: tenThousandDai, MintAmount: thousandAbi}),
		issue(t, vm, txs.LedgerApprove, faucet, &txs.ApprovePayload{Token: base, Spender: stakingID, Amount: thousandAbi}),
		issue(t, vm, txs.Stake, faucet, &txs.StakePayload{To: faucet, Amount: thousandAbi, Rebasing: true, Claim: true}),
	}
}

func TestInitialize(t *testing.T) {
	require := require.New(t)

	vm := newTestVM(t)
	require.True(vm.initialized)
	require.True(vm.IsBootstrapped())
	require.Zero(vm.Height())

	version, err := vm.Version(context.Background())
	require.NoError(err)
	require.Equal("1.0.0", version)

	health, err := vm.HealthCheck(context.Background())
	require.NoError(err)
	require.Equal(true, health.(map[string]interface{})["healthy"])
}

func TestSetState(t *testing.T) {
	require := require.New(t)

	vm := newTestVM(t)
	require.NoError(vm.SetState(context.Background(), luxvm.Bootstrapping))
	require.False(vm.IsBootstrapped())

	_, err := vm.IssueTx([]byte(`{}`))
	require.ErrorIs(err, ErrNotBootstrapped)

	require.ErrorIs(vm.SetState(context.Background(), luxvm.State(42)), errUnknownState)
}

func TestBuildBlock(t *testing.T) {
	require := require.New(t)

	vm, toEngine := createTestVM(t, memdb.New(), config.DefaultConfig())
	defer func() {
		require.NoError(vm.Shutdown(context.Background()))
	}()

	txIDs := depositAndStake(t, vm)
	require.Equal(len(txIDs), vm.MempoolSize())
	require.Equal(luxvm.PendingTxs, (<-toEngine).Type)
	require.Equal(txs.Processing, vm.GetTxStatus(txIDs[0]).Status)

	result, err := vm.BuildBlock(context.Background(), genesisTime.Add(time.Minute))
	require.NoError(err)
	require.Equal(uint64(1), result.Height)
	require.Equal(txIDs, result.Accepted)
	require.Empty(result.Rejected)
	require.Zero(vm.MempoolSize())
	require.Equal(uint64(1), vm.Height())

	receipt := vm.GetTxStatus(txIDs[3])
	require.Equal(txs.Accepted, receipt.Status)
	require.Equal(txs.Stake, receipt.Type)
	require.Equal(thousandAbi.Dec(), receipt.Result)

	require.NoError(vm.Read(func(p *protocol.Protocol) error {
		staked, err := p.Elastic.BalanceOf(genesis.Faucet)
		require.NoError(err)
		require.Equal(thousandAbi, staked)
		return nil
	}))

	require.Equal(txs.Unknown, vm.GetTxStatus(ids.GenerateTestID()).Status)
}

func TestRejectedTxRollsBack(t *testing.T) {
	require := require.New(t)

	vm := newTestVM(t)

	var before uint64
	require.NoError(vm.Read(func(p *protocol.Protocol) error {
		var err error
		before, err = p.Store().EventCount()
		return err
	}))

	// no allowance for the treasury
	txID := issue(t, vm, txs.Deposit, genesis.Faucet, &txs.DepositPayload{
		Token:      genesis.DAI,
		Amount:     tenThousandDai,
		MintAmount: thousandAbi,
	})
	result, err := vm.BuildBlock(context.Background(), genesisTime.Add(time.Minute))
	require.NoError(err)
	require.Equal([]ids.ID{txID}, result.Rejected)

	receipt := vm.GetTxStatus(txID)
	require.Equal(txs.Rejected, receipt.Status)
	require.Contains(receipt.Reason, "allowance exceeded")

	require.NoError(vm.Read(func(p *protocol.Protocol) error {
		after, err := p.Store().EventCount()
		require.NoError(err)
		require.Equal(before, after)

		supply, err := p.Base.TotalSupply()
		require.NoError(err)
		require.True(supply.IsZero())
		return nil
	}))
}

func TestIssueTxErrors(t *testing.T) {
	require := require.New(t)

	cfg := config.DefaultConfig()
	cfg.MempoolSize = 1
	vm, _ := createTestVM(t, memdb.New(), cfg)
	defer func() {
		require.NoError(vm.Shutdown(context.Background()))
	}()

	tx, err := txs.New(txs.Rebase, genesis.Faucet, nil)
	require.NoError(err)
	_, err = vm.IssueTx(tx.Bytes())
	require.NoError(err)

	_, err = vm.IssueTx(tx.Bytes())
	require.ErrorIs(err, ErrDuplicateTx)

	other, err := txs.New(txs.ToggleLock, genesis.Faucet, nil)
	require.NoError(err)
	_, err = vm.IssueTx(other.Bytes())
	require.ErrorIs(err, ErrMempoolFull)

	_, err = vm.IssueTx([]byte("not json"))
	require.ErrorIs(err, txs.ErrInvalidTx)

	_, err = vm.BuildBlock(context.Background(), genesisTime.Add(time.Minute))
	require.NoError(err)

	// processed transactions stay known
	_, err = vm.IssueTx(tx.Bytes())
	require.ErrorIs(err, ErrDuplicateTx)
}

func TestProcessBlockOrdering(t *testing.T) {
	require := require.New(t)

	vm := newTestVM(t)
	ctx := context.Background()

	_, err := vm.ProcessBlock(ctx, 2, genesisTime, nil)
	require.ErrorIs(err, ErrInvalidHeight)

	_, err = vm.ProcessBlock(ctx, 1, genesisTime.Add(time.Hour), nil)
	require.NoError(err)

	_, err = vm.ProcessBlock(ctx, 2, genesisTime, nil)
	require.ErrorIs(err, ErrTimeRegressed)

	result, err := vm.ProcessBlock(ctx, 2, genesisTime.Add(time.Hour), [][]byte{[]byte("{")})
	require.NoError(err)
	require.Equal(1, result.Malformed)
}

// TestRebaseAcrossBlocks advances block time past the epoch end and checks
// the rebase transaction moves the epoch.
func TestRebaseAcrossBlocks(t *testing.T) {
	require := require.New(t)

	vm := newTestVM(t)
	ctx := context.Background()

	var start uint64
	require.NoError(vm.Read(func(p *protocol.Protocol) error {
		epoch, err := p.Staking.Epoch()
		start = epoch.End
		return err
	}))

	depositAndStake(t, vm)
	_, err := vm.BuildBlock(ctx, time.Unix(int64(start)-1, 0))
	require.NoError(err)

	txID := issue(t, vm, txs.Rebase, genesis.Faucet, nil)
	_, err = vm.BuildBlock(ctx, time.Unix(int64(start), 0))
	require.NoError(err)

	receipt := vm.GetTxStatus(txID)
	require.Equal(txs.Accepted, receipt.Status)
	require.Equal("1", receipt.Result)

	require.NoError(vm.Read(func(p *protocol.Protocol) error {
		epoch, err := p.Staking.Epoch()
		require.NoError(err)
		require.Equal(uint64(2), epoch.Number)
		return nil
	}))
}

func TestRestart(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	vm, _ := createTestVM(t, db, config.DefaultConfig())
	depositAndStake(t, vm)
	_, err := vm.BuildBlock(context.Background(), genesisTime.Add(time.Minute))
	require.NoError(err)
	require.NoError(vm.Shutdown(context.Background()))

	_, err = vm.IssueTx([]byte(`{}`))
	require.ErrorIs(err, ErrShutdown)

	restarted, _ := createTestVM(t, db, config.DefaultConfig())
	defer func() {
		require.NoError(restarted.Shutdown(context.Background()))
	}()
	require.Equal(uint64(1), restarted.Height())
	require.Equal(genesisTime.Add(time.Minute), restarted.lastBlockTime)

	require.NoError(restarted.Read(func(p *protocol.Protocol) error {
		staked, err := p.Elastic.BalanceOf(genesis.Faucet)
		require.NoError(err)
		require.Equal(thousandAbi, staked)
		return nil
	}))
}

func rpcCall(t *testing.T, handler http.Handler, method string, params any, reply any) {
	require := require.New(t)

	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(http.StatusOK, rec.Code)

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(resp.Error)
	require.NoError(json.Unmarshal(resp.Result, reply))
}

func TestHandlers(t *testing.T) {
	require := require.New(t)

	vm := newTestVM(t)
	handlers, err := vm.CreateHandlers(context.Background())
	require.NoError(err)
	handler := handlers[""]
	require.NotNil(handler)

	var ping api.PingReply
	rpcCall(t, handler, "abachi.Ping", struct{}{}, &ping)
	require.True(ping.Success)

	tx, err := txs.New(txs.Rebase, genesis.Faucet, nil)
	require.NoError(err)
	var issued api.IssueTxReply
	rpcCall(t, handler, "abachi.IssueTx", &api.IssueTxArgs{Tx: tx.Bytes()}, &issued)
	require.Equal(tx.ID(), issued.TxID)

	var status api.StatusReply
	rpcCall(t, handler, "abachi.Status", struct{}{}, &status)
	require.True(status.Bootstrapped)
	require.Equal(1, status.Mempool)

	var epoch api.GetEpochReply
	rpcCall(t, handler, "abachi.GetEpoch", struct{}{}, &epoch)
	require.Equal(uint64(1), uint64(epoch.Number))
	require.Equal("single", epoch.Policy)

	var balance api.GetBalanceReply
	rpcCall(t, handler, "abachi.GetBalance", &api.GetBalanceArgs{Token: genesis.DAI, Account: genesis.Faucet}, &balance)
	require.Equal("DAI", balance.Symbol)
	require.Equal("1000000000000000000000000000", balance.Balance)

	var roles api.GetRolesReply
	rpcCall(t, handler, "abachi.GetRoles", struct{}{}, &roles)
	require.Equal(vm.protocol.Genesis.Addresses.Treasury, roles.Roles["vault"].Holder)

	var events api.GetEventsReply
	rpcCall(t, handler, "abachi.GetEvents", &api.GetEventsArgs{Limit: 5}, &events)
	require.Len(events.Events, 5)
	require.Equal(uint64(5), uint64(events.Next))
}
