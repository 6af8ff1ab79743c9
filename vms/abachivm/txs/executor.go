// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	"github.com/luxfi/abachi/vms/abachivm/authority"
	"github.com/luxfi/abachi/vms/abachivm/ledger"
	"github.com/luxfi/abachi/vms/abachivm/protocol"
	"github.com/luxfi/abachi/vms/abachivm/treasury"
)

type handler func(sender ids.ShortID, payload json.RawMessage) (any, error)

// Executor runs transactions against a protocol instance. It does not open an
// atomic section of its own; the caller decides the commit boundary.
type Executor struct {
	p          *protocol.Protocol
	handlers   map[string]handler
	components map[ids.ShortID]struct{}
}

// register binds [typ] to [fn], decoding the payload into a fresh P.
func register[P any](e *Executor, typ string, fn func(p *protocol.Protocol, sender ids.ShortID, payload *P) (any, error)) {
	e.handlers[typ] = func(sender ids.ShortID, raw json.RawMessage) (any, error) {
		payload := new(P)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, payload); err != nil {
				return nil, fmt.Errorf("%w: %s payload: %v", ErrInvalidTx, typ, err)
			}
		}
		if v, ok := any(payload).(verifier); ok {
			if err := v.Verify(); err != nil {
				return nil, fmt.Errorf("%s: %w", typ, err)
			}
		}
		return fn(e.p, sender, payload)
	}
}

func NewExecutor(p *protocol.Protocol) *Executor {
	e := &Executor{
		p:          p,
		handlers:   make(map[string]handler),
		components: make(map[ids.ShortID]struct{}),
	}
	for _, addr := range p.Genesis.Addresses.List() {
		e.components[addr] = struct{}{}
	}
	registerAuthority(e)
	registerLedgers(e)
	registerStaking(e)
	registerDistributor(e)
	registerTreasury(e)
	return e
}

// Execute runs [tx] and returns the operation's result. Component addresses
// only move funds from inside the protocol, so they can never send a tx.
func (e *Executor) Execute(tx *Tx) (any, error) {
	h, ok := e.handlers[tx.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTxType, tx.Type)
	}
	if _, ok := e.components[tx.Sender]; ok {
		return nil, fmt.Errorf("%w: sender %s is a protocol component", ErrInvalidTx, tx.Sender)
	}
	return h(tx.Sender, tx.Payload)
}

// Types lists every supported transaction type.
func (e *Executor) Types() []string {
	types := make([]string, 0, len(e.handlers))
	for typ := range e.handlers {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

func registerAuthority(e *Executor) {
	register(e, PushRole, func(p *protocol.Protocol, sender ids.ShortID, payload *PushRolePayload) (any, error) {
		role, err := authority.ParseRole(payload.Role)
		if err != nil {
			return nil, err
		}
		return nil, p.Authority.PushRole(sender, role, payload.Candidate, payload.Immediate)
	})
	register(e, PullRole, func(p *protocol.Protocol, sender ids.ShortID, payload *PullRolePayload) (any, error) {
		role, err := authority.ParseRole(payload.Role)
		if err != nil {
			return nil, err
		}
		return nil, p.Authority.PullRole(sender, role)
	})
}

type approver interface {
	Approve(caller, spender ids.ShortID, amount *uint256.Int) error
}

func approve(p *protocol.Protocol, token, sender, spender ids.ShortID, amount *uint256.Int) error {
	t, err := p.Tokens.Get(token)
	if err != nil {
		return err
	}
	a, ok := t.(approver)
	if !ok {
		return fmt.Errorf("%w: %s has no allowances", ledger.ErrUnknownToken, token)
	}
	return a.Approve(sender, spender, amount)
}

func transfer(p *protocol.Protocol, token, sender, to ids.ShortID, amount *uint256.Int) error {
	t, err := p.Tokens.Get(token)
	if err != nil {
		return err
	}
	return t.Transfer(sender, to, amount)
}

func registerLedgers(e *Executor) {
	register(e, LedgerTransfer, func(p *protocol.Protocol, sender ids.ShortID, payload *TransferPayload) (any, error) {
		return nil, transfer(p, payload.Token, sender, payload.To, payload.Amount)
	})
	register(e, LedgerApprove, func(p *protocol.Protocol, sender ids.ShortID, payload *ApprovePayload) (any, error) {
		return nil, approve(p, payload.Token, sender, payload.Spender, payload.Amount)
	})
	register(e, LedgerBurn, func(p *protocol.Protocol, sender ids.ShortID, payload *BurnPayload) (any, error) {
		return nil, p.Base.Burn(sender, payload.Amount)
	})
	register(e, LedgerBurnFrom, func(p *protocol.Protocol, sender ids.ShortID, payload *BurnPayload) (any, error) {
		return nil, p.Base.BurnFrom(sender, payload.Holder, payload.Amount)
	})

	register(e, ElasticTransfer, func(p *protocol.Protocol, sender ids.ShortID, payload *TransferPayload) (any, error) {
		return nil, p.Elastic.Transfer(sender, payload.To, payload.Amount)
	})
	register(e, ElasticApprove, func(p *protocol.Protocol, sender ids.ShortID, payload *ApprovePayload) (any, error) {
		return nil, p.Elastic.Approve(sender, payload.Spender, payload.Amount)
	})
	register(e, WrappedTransfer, func(p *protocol.Protocol, sender ids.ShortID, payload *TransferPayload) (any, error) {
		return nil, p.Wrapped.Transfer(sender, payload.To, payload.Amount)
	})
	register(e, WrappedApprove, func(p *protocol.Protocol, sender ids.ShortID, payload *ApprovePayload) (any, error) {
		return nil, p.Wrapped.Approve(sender, payload.Spender, payload.Amount)
	})
}

func registerStaking(e *Executor) {
	register(e, Stake, func(p *protocol.Protocol, sender ids.ShortID, payload *StakePayload) (any, error) {
		return p.Staking.Stake(sender, payload.To, payload.Amount, payload.Rebasing, payload.Claim)
	})
	register(e, Claim, func(p *protocol.Protocol, sender ids.ShortID, payload *ClaimPayload) (any, error) {
		return p.Staking.Claim(sender, payload.To, payload.Rebasing)
	})
	register(e, Forfeit, func(p *protocol.Protocol, sender ids.ShortID, _ *Empty) (any, error) {
		return p.Staking.Forfeit(sender)
	})
	register(e, ToggleLock, func(p *protocol.Protocol, sender ids.ShortID, _ *Empty) (any, error) {
		return p.Staking.ToggleLock(sender)
	})
	register(e, Unstake, func(p *protocol.Protocol, sender ids.ShortID, payload *UnstakePayload) (any, error) {
		return p.Staking.Unstake(sender, payload.To, payload.Amount, payload.Trigger, payload.Rebasing)
	})
	register(e, Wrap, func(p *protocol.Protocol, sender ids.ShortID, payload *WrapPayload) (any, error) {
		return p.Staking.Wrap(sender, payload.To, payload.Amount)
	})
	register(e, Unwrap, func(p *protocol.Protocol, sender ids.ShortID, payload *WrapPayload) (any, error) {
		return p.Staking.Unwrap(sender, payload.To, payload.Amount)
	})
	register(e, Rebase, func(p *protocol.Protocol, sender ids.ShortID, _ *Empty) (any, error) {
		return p.Staking.Rebase(sender)
	})
	register(e, SetDistributor, func(p *protocol.Protocol, sender ids.ShortID, payload *SetDistributorPayload) (any, error) {
		return nil, p.Staking.SetDistributor(sender, payload.Distributor)
	})
	register(e, SetWarmupLength, func(p *protocol.Protocol, sender ids.ShortID, payload *SetWarmupLengthPayload) (any, error) {
		return nil, p.Staking.SetWarmupLength(sender, uint64(payload.Period))
	})
}

func registerDistributor(e *Executor) {
	register(e, AddRecipient, func(p *protocol.Protocol, sender ids.ShortID, payload *AddRecipientPayload) (any, error) {
		return nil, p.Distributor.AddRecipient(sender, payload.Recipient, uint64(payload.Rate))
	})
	register(e, RemoveRecipient, func(p *protocol.Protocol, sender ids.ShortID, payload *RemoveRecipientPayload) (any, error) {
		return nil, p.Distributor.RemoveRecipient(sender, uint64(payload.Index))
	})
	register(e, SetAdjustment, func(p *protocol.Protocol, sender ids.ShortID, payload *SetAdjustmentPayload) (any, error) {
		return nil, p.Distributor.SetAdjustment(sender, uint64(payload.Index), payload.Add, uint64(payload.Rate), uint64(payload.Target))
	})
}

func registerTreasury(e *Executor) {
	register(e, Enable, func(p *protocol.Protocol, sender ids.ShortID, payload *PermissionPayload) (any, error) {
		class, err := treasury.ParsePermission(payload.Class)
		if err != nil {
			return nil, err
		}
		return nil, p.Treasury.Enable(sender, class, payload.Address, payload.Extra)
	})
	register(e, Disable, func(p *protocol.Protocol, sender ids.ShortID, payload *PermissionPayload) (any, error) {
		class, err := treasury.ParsePermission(payload.Class)
		if err != nil {
			return nil, err
		}
		return nil, p.Treasury.Disable(sender, class, payload.Address)
	})
	register(e, Deposit, func(p *protocol.Protocol, sender ids.ShortID, payload *DepositPayload) (any, error) {
		return p.Treasury.Deposit(sender, payload.Amount, payload.Token, payload.MintAmount)
	})
	register(e, Withdraw, func(p *protocol.Protocol, sender ids.ShortID, payload *AssetPayload) (any, error) {
		return nil, p.Treasury.Withdraw(sender, payload.Amount, payload.Token)
	})
	register(e, Manage, func(p *protocol.Protocol, sender ids.ShortID, payload *AssetPayload) (any, error) {
		return nil, p.Treasury.Manage(sender, payload.Token, payload.Amount)
	})
	register(e, Mint, func(p *protocol.Protocol, sender ids.ShortID, payload *MintPayload) (any, error) {
		return nil, p.Treasury.Mint(sender, payload.Recipient, payload.Amount)
	})
	register(e, IncurDebt, func(p *protocol.Protocol, sender ids.ShortID, payload *AssetPayload) (any, error) {
		return nil, p.Treasury.IncurDebt(sender, payload.Amount, payload.Token)
	})
	register(e, RepayDebtWithReserve, func(p *protocol.Protocol, sender ids.ShortID, payload *AssetPayload) (any, error) {
		return nil, p.Treasury.RepayDebtWithReserve(sender, payload.Amount, payload.Token)
	})
	register(e, RepayDebtWithBase, func(p *protocol.Protocol, sender ids.ShortID, payload *AmountPayload) (any, error) {
		return nil, p.Treasury.RepayDebtWithBase(sender, payload.Amount)
	})
	register(e, SetDebtLimit, func(p *protocol.Protocol, sender ids.ShortID, payload *SetDebtLimitPayload) (any, error) {
		return nil, p.Treasury.SetDebtLimit(sender, payload.Account, payload.Limit)
	})
	register(e, AuditReserves, func(p *protocol.Protocol, sender ids.ShortID, _ *Empty) (any, error) {
		return nil, p.Treasury.AuditReserves(sender)
	})
}
