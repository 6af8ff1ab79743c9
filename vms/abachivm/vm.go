// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package abachivm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/luxfi/cache"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	luxvm "github.com/luxfi/abachi"
	"github.com/luxfi/abachi/utils/json"
	utilmetric "github.com/luxfi/abachi/utils/metric"
	"github.com/luxfi/abachi/utils/timer/mockable"
	"github.com/luxfi/abachi/vms/abachivm/api"
	"github.com/luxfi/abachi/vms/abachivm/config"
	"github.com/luxfi/abachi/vms/abachivm/genesis"
	"github.com/luxfi/abachi/vms/abachivm/mempool"
	"github.com/luxfi/abachi/vms/abachivm/metrics"
	"github.com/luxfi/abachi/vms/abachivm/protocol"
	"github.com/luxfi/abachi/vms/abachivm/state"
	"github.com/luxfi/abachi/vms/abachivm/txs"
)

const version = "1.0.0"

var (
	ErrNotInitialized  = errors.New("VM not initialized")
	ErrNotBootstrapped = errors.New("VM not bootstrapped")
	ErrShutdown        = errors.New("VM is shutting down")
	ErrDuplicateTx     = mempool.ErrDuplicateTx
	ErrMempoolFull     = mempool.ErrMempoolFull
	ErrInvalidHeight   = errors.New("unexpected block height")
	ErrTimeRegressed   = errors.New("block time before previous block")

	errUnknownState = errors.New("unknown state")

	keyHeight    = []byte("height")
	keyBlockTime = []byte("blockTime")

	_ luxvm.VM = (*VM)(nil)
)

// BlockResult is the outcome of processing one block.
type BlockResult struct {
	Height    uint64
	Timestamp time.Time
	Accepted  []ids.ID
	Rejected  []ids.ID
	// Malformed counts transactions that could not be decoded.
	Malformed int
}

// VM runs the Abachi protocol. All state transitions happen in ProcessBlock;
// the VM starts no goroutines of its own.
type VM struct {
	config.Config

	log log.Logger

	// Lock for thread safety. Blocks and issuance take it exclusively.
	lock sync.RWMutex

	// Used as the protocol's notion of now; set to the block time per block
	clock mockable.Clock

	store    *state.Store
	db       database.Database
	protocol *protocol.Protocol
	executor *txs.Executor
	metrics  *metrics.Metrics

	interceptor utilmetric.APIInterceptor
	toEngine    chan<- luxvm.Message

	mempool  *mempool.Mempool
	receipts *cache.LRU[ids.ID, txs.Receipt]

	height        uint64
	lastBlockTime time.Time

	// Lifecycle state
	initialized  bool
	bootstrapped bool
	shutdown     bool
}

// New returns an uninitialized VM using [cfg].
func New(cfg config.Config, logger log.Logger) *VM {
	return &VM{
		Config: cfg,
		log:    logger,
	}
}

// Initialize opens the chain state, writing the genesis on first start.
func (vm *VM) Initialize(_ context.Context, cfg *luxvm.Config) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.log == nil {
		vm.log = log.NewNoOpLogger()
	}
	if len(cfg.ConfigBytes) > 0 {
		c, err := config.ParseConfig(cfg.ConfigBytes)
		if err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		vm.Config = c
	} else if err := vm.Config.Validate(); err != nil {
		return err
	}

	g := genesis.Default()
	if len(cfg.GenesisBytes) > 0 {
		var err error
		g, err = genesis.Parse(cfg.GenesisBytes)
		if err != nil {
			return fmt.Errorf("failed to parse genesis: %w", err)
		}
	} else {
		vm.log.Warn("no genesis supplied, using the development genesis")
	}

	vm.store = state.New(cfg.DB, vm.log)
	vm.db = vm.store.Scope([]byte("vm"))
	p, err := protocol.New(g, vm.store, &vm.clock, vm.RebasePolicy, vm.log)
	if err != nil {
		return err
	}
	vm.protocol = p
	vm.executor = txs.NewExecutor(p)

	if err := vm.loadChain(); err != nil {
		return err
	}
	if vm.lastBlockTime.IsZero() {
		vm.clock.Set(time.Now().Truncate(time.Second))
	} else {
		vm.clock.Set(vm.lastBlockTime)
	}
	if err := p.Bootstrap(vm.clock.Unix()); err != nil {
		return fmt.Errorf("failed to write genesis: %w", err)
	}

	var registry metric.Registry
	if vm.MetricsEnabled {
		registry = cfg.Metrics
	}
	vm.mempool, err = mempool.New(api.Name, vm.Config.MempoolSize, registry)
	if err != nil {
		return err
	}
	if registry != nil {
		vm.metrics, err = metrics.New(registry)
		if err != nil {
			return err
		}
		vm.interceptor = utilmetric.NewAPIInterceptor(api.Name, registry)
		vm.observe()
	}
	if vm.IndexEvents {
		vm.store.OnCommit(vm.indexEvents)
	}

	vm.toEngine = cfg.ToEngine
	vm.receipts = &cache.LRU[ids.ID, txs.Receipt]{Size: vm.TxCacheSize}
	vm.initialized = true

	vm.log.Info("Abachi VM initialized",
		log.Uint64("height", vm.height),
		log.String("rebasePolicy", string(vm.RebasePolicy)),
		log.Duration("blockInterval", vm.BlockInterval),
	)
	return nil
}

func (vm *VM) loadChain() error {
	height, err := state.GetUint64(vm.db, keyHeight)
	if err != nil {
		return err
	}
	blockTime, err := state.GetUint64(vm.db, keyBlockTime)
	if err != nil {
		return err
	}
	vm.height = height
	if blockTime > 0 {
		vm.lastBlockTime = time.Unix(int64(blockTime), 0)
	}
	return nil
}

func (vm *VM) indexEvents(events []state.Event) {
	for _, e := range events {
		vm.log.Debug("event committed",
			log.Uint64("seq", e.Seq),
			log.String("name", e.Name),
			log.Stringer("source", e.Source),
			log.Reflect("attrs", e.Attrs),
		)
	}
}

// SetState transitions the VM between bootstrapping and normal operation.
func (vm *VM) SetState(_ context.Context, s luxvm.State) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	switch s {
	case luxvm.Bootstrapping:
		vm.log.Info("Abachi VM entering bootstrap state")
		vm.bootstrapped = false
		return nil
	case luxvm.NormalOp:
		vm.log.Info("Abachi VM entering normal operation")
		vm.bootstrapped = true
		return nil
	default:
		return fmt.Errorf("%w: %s", errUnknownState, s)
	}
}

// IssueTx adds the encoded transaction [b] to the mempool.
func (vm *VM) IssueTx(b []byte) (ids.ID, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if err := vm.ready(); err != nil {
		return ids.Empty, err
	}
	tx, err := txs.Parse(b)
	if err != nil {
		return ids.Empty, err
	}
	txID := tx.ID()
	if _, ok := vm.receipts.Get(txID); ok {
		return ids.Empty, fmt.Errorf("%w: %s", ErrDuplicateTx, txID)
	}
	if err := vm.mempool.Add(tx); err != nil {
		return ids.Empty, err
	}
	vm.log.Debug("tx issued",
		log.Stringer("txID", txID),
		log.String("type", tx.Type),
	)
	vm.notify()
	return txID, nil
}

func (vm *VM) notify() {
	if vm.toEngine == nil {
		return
	}
	select {
	case vm.toEngine <- luxvm.Message{Type: luxvm.PendingTxs}:
	default:
	}
}

func (vm *VM) ready() error {
	switch {
	case vm.shutdown:
		return ErrShutdown
	case !vm.initialized:
		return ErrNotInitialized
	case !vm.bootstrapped:
		return ErrNotBootstrapped
	default:
		return nil
	}
}

// BuildBlock processes up to MaxTxsPerBlock pending transactions as the next
// block, stamped [blockTime].
func (vm *VM) BuildBlock(ctx context.Context, blockTime time.Time) (*BlockResult, error) {
	vm.lock.Lock()
	popped := vm.mempool.PopN(vm.MaxTxsPerBlock)
	raw := make([][]byte, len(popped))
	for i, tx := range popped {
		raw[i] = tx.Bytes()
	}
	height := vm.height + 1
	vm.lock.Unlock()

	return vm.ProcessBlock(ctx, height, blockTime, raw)
}

// ProcessBlock executes [blockTxs] in order at [blockHeight]. Each transaction
// commits or rolls back on its own; a failed transaction does not fail the
// block.
func (vm *VM) ProcessBlock(_ context.Context, blockHeight uint64, blockTime time.Time, blockTxs [][]byte) (*BlockResult, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.shutdown {
		return nil, ErrShutdown
	}
	if !vm.initialized {
		return nil, ErrNotInitialized
	}
	if blockHeight != vm.height+1 {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrInvalidHeight, blockHeight, vm.height+1)
	}
	blockTime = blockTime.Truncate(time.Second)
	if blockTime.Before(vm.lastBlockTime) {
		return nil, fmt.Errorf("%w: %s < %s", ErrTimeRegressed, blockTime, vm.lastBlockTime)
	}

	start := time.Now()
	vm.clock.Set(blockTime)
	result := &BlockResult{
		Height:    blockHeight,
		Timestamp: blockTime,
	}
	for _, b := range blockTxs {
		tx, err := txs.Parse(b)
		if err != nil {
			vm.log.Warn("Transaction malformed", log.Err(err))
			result.Malformed++
			continue
		}
		vm.processTx(tx, result)
	}

	err := vm.store.Atomic(func() error {
		if err := state.PutUint64(vm.db, keyHeight, blockHeight); err != nil {
			return err
		}
		return state.PutUint64(vm.db, keyBlockTime, uint64(blockTime.Unix()))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist block %d: %w", blockHeight, err)
	}
	vm.height = blockHeight
	vm.lastBlockTime = blockTime

	if vm.metrics != nil {
		vm.metrics.MarkBlock(time.Since(start).Nanoseconds())
		vm.observe()
	}
	vm.log.Debug("Block processed",
		log.Uint64("height", blockHeight),
		log.Int("accepted", len(result.Accepted)),
		log.Int("rejected", len(result.Rejected)),
		log.Int("malformed", result.Malformed),
	)
	return result, nil
}

func (vm *VM) processTx(tx *txs.Tx, result *BlockResult) {
	var out any
	err := vm.store.Atomic(func() error {
		var err error
		out, err = vm.executor.Execute(tx)
		return err
	})

	receipt := txs.Receipt{
		Type:   tx.Type,
		Height: json.Uint64(result.Height),
	}
	if err != nil {
		receipt.Status = txs.Rejected
		receipt.Reason = err.Error()
		result.Rejected = append(result.Rejected, tx.ID())
		if vm.metrics != nil {
			vm.metrics.MarkRejected(tx.Type)
		}
		vm.log.Warn("Transaction failed",
			log.Stringer("txID", tx.ID()),
			log.String("type", tx.Type),
			log.Stringer("sender", tx.Sender),
			log.Err(err),
		)
	} else {
		receipt.Status = txs.Accepted
		receipt.Result = txs.FormatResult(out)
		result.Accepted = append(result.Accepted, tx.ID())
		if vm.metrics != nil {
			vm.metrics.MarkAccepted(tx.Type)
		}
	}
	vm.receipts.Put(tx.ID(), receipt)
}

func (vm *VM) observe() {
	if err := vm.metrics.Observe(vm.protocol); err != nil {
		vm.log.Warn("failed to refresh metrics", log.Err(err))
	}
}

// GetTxStatus reports what happened to [txID]. Receipts of old transactions
// are evicted and read as Unknown.
func (vm *VM) GetTxStatus(txID ids.ID) txs.Receipt {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if vm.mempool != nil && vm.mempool.Has(txID) {
		return txs.Receipt{Status: txs.Processing}
	}
	if vm.receipts != nil {
		if receipt, ok := vm.receipts.Get(txID); ok {
			return receipt
		}
	}
	return txs.Receipt{Status: txs.Unknown}
}

// Read runs [fn] with shared access to the protocol.
func (vm *VM) Read(fn func(p *protocol.Protocol) error) error {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if vm.shutdown {
		return ErrShutdown
	}
	if !vm.initialized {
		return ErrNotInitialized
	}
	return fn(vm.protocol)
}

func (vm *VM) IsBootstrapped() bool {
	vm.lock.RLock()
	defer vm.lock.RUnlock()
	return vm.bootstrapped
}

func (vm *VM) Height() uint64 {
	vm.lock.RLock()
	defer vm.lock.RUnlock()
	return vm.height
}

func (vm *VM) MempoolSize() int {
	vm.lock.RLock()
	defer vm.lock.RUnlock()
	if vm.mempool == nil {
		return 0
	}
	return vm.mempool.Len()
}

// CreateHandlers returns the JSON-RPC handler of the abachi service.
func (vm *VM) CreateHandlers(context.Context) (map[string]http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	server.RegisterCodec(json2.NewCodec(), "application/json;charset=UTF-8")
	if vm.interceptor != nil {
		server.RegisterInterceptFunc(vm.interceptor.InterceptRequest)
		server.RegisterAfterFunc(vm.interceptor.AfterRequest)
	}

	service := api.NewService(vm, vm.MaxEventsPerQuery)
	if err := server.RegisterService(service, api.Name); err != nil {
		return nil, fmt.Errorf("failed to register %s service: %w", api.Name, err)
	}
	return map[string]http.Handler{
		"": server,
	}, nil
}

// HealthCheck reports whether the VM is serving and where the chain is.
func (vm *VM) HealthCheck(context.Context) (interface{}, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if err := vm.ready(); err != nil {
		return nil, err
	}
	epoch, err := vm.protocol.Staking.Epoch()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"healthy":       true,
		"blockHeight":   vm.height,
		"lastBlockTime": vm.lastBlockTime.Unix(),
		"mempool":       vm.mempool.Len(),
		"epoch":         epoch.Number,
		"epochEnd":      epoch.End,
	}, nil
}

func (*VM) Version(context.Context) (string, error) {
	return version, nil
}

// Shutdown stops the VM. Pending transactions are dropped. The host database
// stays open.
func (vm *VM) Shutdown(context.Context) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.shutdown {
		return nil
	}
	dropped := 0
	if vm.mempool != nil {
		dropped = vm.mempool.Clear()
	}
	vm.log.Info("Shutting down Abachi VM",
		log.Int("dropped", dropped),
	)
	vm.shutdown = true
	if vm.store != nil {
		if err := vm.store.Close(); err != nil {
			return fmt.Errorf("failed to close state: %w", err)
		}
	}
	return nil
}
