// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	"github.com/luxfi/abachi/utils/json"
)

const (
	PushRole = "authority.pushRole"
	PullRole = "authority.pullRole"

	LedgerTransfer = "ledger.transfer"
	LedgerApprove  = "ledger.approve"
	LedgerBurn     = "ledger.burn"
	LedgerBurnFrom = "ledger.burnFrom"

	ElasticTransfer = "elastic.transfer"
	ElasticApprove  = "elastic.approve"
	WrappedTransfer = "wrapped.transfer"
	WrappedApprove  = "wrapped.approve"

	Stake           = "staking.stake"
	Claim           = "staking.claim"
	Forfeit         = "staking.forfeit"
	ToggleLock      = "staking.toggleLock"
	Unstake         = "staking.unstake"
	Wrap            = "staking.wrap"
	Unwrap          = "staking.unwrap"
	Rebase          = "staking.rebase"
	SetDistributor  = "staking.setDistributor"
	SetWarmupLength = "staking.setWarmupLength"

	AddRecipient    = "distributor.addRecipient"
	RemoveRecipient = "distributor.removeRecipient"
	SetAdjustment   = "distributor.setAdjustment"

	Enable               = "treasury.enable"
	Disable              = "treasury.disable"
	Deposit              = "treasury.deposit"
	Withdraw             = "treasury.withdraw"
	Manage               = "treasury.manage"
	Mint                 = "treasury.mint"
	IncurDebt            = "treasury.incurDebt"
	RepayDebtWithReserve = "treasury.repayDebtWithReserve"
	RepayDebtWithBase    = "treasury.repayDebtWithBase"
	SetDebtLimit         = "treasury.setDebtLimit"
	AuditReserves        = "treasury.auditReserves"
)

// verifier is implemented by payloads carrying amounts.
type verifier interface {
	Verify() error
}

func requireAmounts(amounts ...*uint256.Int) error {
	for _, amount := range amounts {
		if amount == nil {
			return fmt.Errorf("%w: missing amount", ErrInvalidTx)
		}
	}
	return nil
}

// Empty is the payload of transactions without arguments.
type Empty struct{}

type PushRolePayload struct {
	Role      string      `json:"role"`
	Candidate ids.ShortID `json:"candidate"`
	Immediate bool        `json:"immediate"`
}

type PullRolePayload struct {
	Role string `json:"role"`
}

// TransferPayload moves Amount to To. Token is only read by ledger.transfer.
type TransferPayload struct {
	Token  ids.ShortID  `json:"token"`
	To     ids.ShortID  `json:"to"`
	Amount *uint256.Int `json:"amount"`
}

func (p *TransferPayload) Verify() error { return requireAmounts(p.Amount) }

// ApprovePayload sets an allowance. Token is only read by ledger.approve.
type ApprovePayload struct {
	Token   ids.ShortID  `json:"token"`
	Spender ids.ShortID  `json:"spender"`
	Amount  *uint256.Int `json:"amount"`
}

func (p *ApprovePayload) Verify() error { return requireAmounts(p.Amount) }

type BurnPayload struct {
	Holder ids.ShortID  `json:"holder"`
	Amount *uint256.Int `json:"amount"`
}

func (p *BurnPayload) Verify() error { return requireAmounts(p.Amount) }

type StakePayload struct {
	To       ids.ShortID  `json:"to"`
	Amount   *uint256.Int `json:"amount"`
	Rebasing bool         `json:"rebasing"`
	Claim    bool         `json:"claim"`
}

func (p *StakePayload) Verify() error { return requireAmounts(p.Amount) }

type ClaimPayload struct {
	To       ids.ShortID `json:"to"`
	Rebasing bool        `json:"rebasing"`
}

type UnstakePayload struct {
	To       ids.ShortID  `json:"to"`
	Amount   *uint256.Int `json:"amount"`
	Trigger  bool         `json:"trigger"`
	Rebasing bool         `json:"rebasing"`
}

func (p *UnstakePayload) Verify() error { return requireAmounts(p.Amount) }

// WrapPayload is used by both wrap and unwrap.
type WrapPayload struct {
	To     ids.ShortID  `json:"to"`
	Amount *uint256.Int `json:"amount"`
}

func (p *WrapPayload) Verify() error { return requireAmounts(p.Amount) }

type SetDistributorPayload struct {
	Distributor ids.ShortID `json:"distributor"`
}

type SetWarmupLengthPayload struct {
	Period json.Uint64 `json:"period"`
}

type AddRecipientPayload struct {
	Recipient ids.ShortID `json:"recipient"`
	Rate      json.Uint64 `json:"rate"`
}

type RemoveRecipientPayload struct {
	Index json.Uint64 `json:"index"`
}

type SetAdjustmentPayload struct {
	Index  json.Uint64 `json:"index"`
	Add    bool        `json:"add"`
	Rate   json.Uint64 `json:"rate"`
	Target json.Uint64 `json:"target"`
}

// PermissionPayload names a treasury permission class by name or number.
type PermissionPayload struct {
	Class   string      `json:"class"`
	Address ids.ShortID `json:"address"`
	Extra   ids.ShortID `json:"extra"`
}

type DepositPayload struct {
	Token      ids.ShortID  `json:"token"`
	Amount     *uint256.Int `json:"amount"`
	MintAmount *uint256.Int `json:"mintAmount"`
}

func (p *DepositPayload) Verify() error { return requireAmounts(p.Amount, p.MintAmount) }

// AssetPayload carries a token and an amount of it: withdraw, manage,
// incurDebt and repayDebtWithReserve.
type AssetPayload struct {
	Token  ids.ShortID  `json:"token"`
	Amount *uint256.Int `json:"amount"`
}

func (p *AssetPayload) Verify() error { return requireAmounts(p.Amount) }

type MintPayload struct {
	Recipient ids.ShortID  `json:"recipient"`
	Amount    *uint256.Int `json:"amount"`
}

func (p *MintPayload) Verify() error { return requireAmounts(p.Amount) }

type AmountPayload struct {
	Amount *uint256.Int `json:"amount"`
}

func (p *AmountPayload) Verify() error { return requireAmounts(p.Amount) }

type SetDebtLimitPayload struct {
	Account ids.ShortID  `json:"account"`
	Limit   *uint256.Int `json:"limit"`
}

func (p *SetDebtLimitPayload) Verify() error { return requireAmounts(p.Limit) }
