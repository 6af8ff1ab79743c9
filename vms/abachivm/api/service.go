// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api provides the JSON-RPC handlers for the Abachi VM.
package api

import (
	stdjson "encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/luxfi/ids"

	"github.com/luxfi/abachi/utils/json"
	"github.com/luxfi/abachi/vms/abachivm/authority"
	"github.com/luxfi/abachi/vms/abachivm/protocol"
	"github.com/luxfi/abachi/vms/abachivm/state"
	"github.com/luxfi/abachi/vms/abachivm/treasury"
	"github.com/luxfi/abachi/vms/abachivm/txs"
)

const (
	// Name the service is registered under.
	Name = "abachi"

	version = "1.0.0"
)

var (
	ErrNotBootstrapped = errors.New("abachi not bootstrapped")
	ErrInvalidRequest  = errors.New("invalid request")
)

// VM is the part of the VM the service reads from and submits to.
type VM interface {
	IsBootstrapped() bool
	Height() uint64
	MempoolSize() int
	IssueTx(b []byte) (ids.ID, error)
	GetTxStatus(txID ids.ID) txs.Receipt
	// Read runs [fn] with shared access to the protocol.
	Read(fn func(p *protocol.Protocol) error) error
}

// Service provides the RPC API for the Abachi VM.
type Service struct {
	vm        VM
	maxEvents int
}

// NewService creates a new API service. GetEvents pages are capped at
// [maxEvents].
func NewService(vm VM, maxEvents int) *Service {
	return &Service{
		vm:        vm,
		maxEvents: maxEvents,
	}
}

func (s *Service) read(fn func(p *protocol.Protocol) error) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	return s.vm.Read(fn)
}

func requireAddress(name string, addr ids.ShortID) error {
	if addr == ids.ShortEmpty {
		return fmt.Errorf("%w: %s required", ErrInvalidRequest, name)
	}
	return nil
}

type PingArgs struct{}

type PingReply struct {
	Success bool `json:"success"`
}

// Ping returns a simple health check response.
func (*Service) Ping(_ *http.Request, _ *PingArgs, reply *PingReply) error {
	reply.Success = true
	return nil
}

type StatusArgs struct{}

type StatusReply struct {
	Bootstrapped bool        `json:"bootstrapped"`
	Version      string      `json:"version"`
	Height       json.Uint64 `json:"height"`
	Mempool      int         `json:"mempool"`
}

func (s *Service) Status(_ *http.Request, _ *StatusArgs, reply *StatusReply) error {
	reply.Bootstrapped = s.vm.IsBootstrapped()
	reply.Version = version
	reply.Height = json.Uint64(s.vm.Height())
	reply.Mempool = s.vm.MempoolSize()
	return nil
}

// IssueTxArgs carries a transaction envelope:
// {"type": "<component>.<op>", "sender": "<address>", "payload": {...}}
type IssueTxArgs struct {
	Tx stdjson.RawMessage `json:"tx"`
}

type IssueTxReply struct {
	TxID ids.ID `json:"txID"`
}

// IssueTx adds a transaction to the mempool. It is executed in the next block.
func (s *Service) IssueTx(_ *http.Request, args *IssueTxArgs, reply *IssueTxReply) error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	if len(args.Tx) == 0 {
		return fmt.Errorf("%w: tx required", ErrInvalidRequest)
	}
	txID, err := s.vm.IssueTx(args.Tx)
	if err != nil {
		return err
	}
	reply.TxID = txID
	return nil
}

type GetTxStatusArgs struct {
	TxID ids.ID `json:"txID"`
}

func (s *Service) GetTxStatus(_ *http.Request, args *GetTxStatusArgs, reply *txs.Receipt) error {
	*reply = s.vm.GetTxStatus(args.TxID)
	return nil
}

type GetEpochArgs struct{}

type GetEpochReply struct {
	Length     json.Uint64 `json:"length"`
	Number     json.Uint64 `json:"number"`
	End        json.Uint64 `json:"end"`
	Distribute string      `json:"distribute"`
	Policy     string      `json:"policy"`
}

func (s *Service) GetEpoch(_ *http.Request, _ *GetEpochArgs, reply *GetEpochReply) error {
	return s.read(func(p *protocol.Protocol) error {
		epoch, err := p.Staking.Epoch()
		if err != nil {
			return err
		}
		reply.Length = json.Uint64(epoch.Length)
		reply.Number = json.Uint64(epoch.Number)
		reply.End = json.Uint64(epoch.End)
		reply.Distribute = epoch.Distribute.Dec()
		reply.Policy = string(p.Staking.Policy())
		return nil
	})
}

type AccountArgs struct {
	Account ids.ShortID `json:"account"`
}

type GetWarmupInfoReply struct {
	Deposit        string      `json:"deposit"`
	Gons           string      `json:"gons"`
	Expiry         json.Uint64 `json:"expiry"`
	Lock           bool        `json:"lock"`
	WarmupPeriod   json.Uint64 `json:"warmupPeriod"`
	SupplyInWarmup string      `json:"supplyInWarmup"`
}

func (s *Service) GetWarmupInfo(_ *http.Request, args *AccountArgs, reply *GetWarmupInfoReply) error {
	if err := requireAddress("account", args.Account); err != nil {
		return err
	}
	return s.read(func(p *protocol.Protocol) error {
		entry, err := p.Staking.WarmupInfo(args.Account)
		if err != nil {
			return err
		}
		period, err := p.Staking.WarmupPeriod()
		if err != nil {
			return err
		}
		supply, err := p.Staking.SupplyInWarmup()
		if err != nil {
			return err
		}
		reply.Deposit = entry.Deposit.Dec()
		reply.Gons = entry.Gons.Dec()
		reply.Expiry = json.Uint64(entry.Expiry)
		reply.Lock = entry.Lock
		reply.WarmupPeriod = json.Uint64(period)
		reply.SupplyInWarmup = supply.Dec()
		return nil
	})
}

type GetBalanceArgs struct {
	Token   ids.ShortID `json:"token"`
	Account ids.ShortID `json:"account"`
}

type GetBalanceReply struct {
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	Balance     string `json:"balance"`
	TotalSupply string `json:"totalSupply"`
}

// GetBalance returns [Account]'s balance on any registered ledger.
func (s *Service) GetBalance(_ *http.Request, args *GetBalanceArgs, reply *GetBalanceReply) error {
	if err := requireAddress("account", args.Account); err != nil {
		return err
	}
	return s.read(func(p *protocol.Protocol) error {
		token, err := p.Tokens.Get(args.Token)
		if err != nil {
			return err
		}
		balance, err := token.BalanceOf(args.Account)
		if err != nil {
			return err
		}
		supply, err := token.TotalSupply()
		if err != nil {
			return err
		}
		reply.Symbol = token.Symbol()
		reply.Decimals = token.Decimals()
		reply.Balance = balance.Dec()
		reply.TotalSupply = supply.Dec()
		return nil
	})
}

type GetIndexArgs struct{}

type GetIndexReply struct {
	Index string `json:"index"`
}

func (s *Service) GetIndex(_ *http.Request, _ *GetIndexArgs, reply *GetIndexReply) error {
	return s.read(func(p *protocol.Protocol) error {
		index, err := p.Elastic.Index()
		if err != nil {
			return err
		}
		reply.Index = index.Dec()
		return nil
	})
}

type GetCirculatingSupplyArgs struct{}

type GetCirculatingSupplyReply struct {
	Circulating string `json:"circulating"`
	TotalSupply string `json:"totalSupply"`
}

func (s *Service) GetCirculatingSupply(_ *http.Request, _ *GetCirculatingSupplyArgs, reply *GetCirculatingSupplyReply) error {
	return s.read(func(p *protocol.Protocol) error {
		circulating, err := p.Elastic.CirculatingSupply()
		if err != nil {
			return err
		}
		supply, err := p.Elastic.TotalSupply()
		if err != nil {
			return err
		}
		reply.Circulating = circulating.Dec()
		reply.TotalSupply = supply.Dec()
		return nil
	})
}

type GetDebtReply struct {
	Debt  string `json:"debt"`
	Limit string `json:"limit"`
}

func (s *Service) GetDebt(_ *http.Request, args *AccountArgs, reply *GetDebtReply) error {
	if err := requireAddress("account", args.Account); err != nil {
		return err
	}
	return s.read(func(p *protocol.Protocol) error {
		debt, err := p.Elastic.DebtBalances(args.Account)
		if err != nil {
			return err
		}
		limit, err := p.Treasury.DebtLimit(args.Account)
		if err != nil {
			return err
		}
		reply.Debt = debt.Dec()
		reply.Limit = limit.Dec()
		return nil
	})
}

type GetPermissionArgs struct {
	Class   string      `json:"class"`
	Address ids.ShortID `json:"address"`
}

type GetPermissionReply struct {
	Class    string        `json:"class"`
	Enabled  bool          `json:"enabled"`
	Registry []ids.ShortID `json:"registry"`
}

// GetPermission reports whether [Address] holds [Class] and lists every
// address ever granted it.
func (s *Service) GetPermission(_ *http.Request, args *GetPermissionArgs, reply *GetPermissionReply) error {
	class, err := treasury.ParsePermission(args.Class)
	if err != nil {
		return err
	}
	return s.read(func(p *protocol.Protocol) error {
		enabled, err := p.Treasury.Permissions(class, args.Address)
		if err != nil {
			return err
		}
		registry, err := p.Treasury.Registry(class)
		if err != nil {
			return err
		}
		reply.Class = class.String()
		reply.Enabled = enabled
		reply.Registry = registry
		return nil
	})
}

type GetTreasuryArgs struct{}

type GetTreasuryReply struct {
	Address        ids.ShortID `json:"address"`
	TotalReserves  string      `json:"totalReserves"`
	TotalDebt      string      `json:"totalDebt"`
	BaseDebt       string      `json:"baseDebt"`
	ExcessReserves string      `json:"excessReserves"`
}

func (s *Service) GetTreasury(_ *http.Request, _ *GetTreasuryArgs, reply *GetTreasuryReply) error {
	return s.read(func(p *protocol.Protocol) error {
		reserves, err := p.Treasury.TotalReserves()
		if err != nil {
			return err
		}
		debt, err := p.Treasury.TotalDebt()
		if err != nil {
			return err
		}
		baseDebt, err := p.Treasury.BaseDebt()
		if err != nil {
			return err
		}
		excess, err := p.Treasury.ExcessReserves()
		if err != nil {
			return err
		}
		reply.Address = p.Treasury.Address()
		reply.TotalReserves = reserves.Dec()
		reply.TotalDebt = debt.Dec()
		reply.BaseDebt = baseDebt.Dec()
		reply.ExcessReserves = excess.Dec()
		return nil
	})
}

type GetRolesArgs struct{}

type RoleInfo struct {
	Holder  ids.ShortID `json:"holder"`
	Pending ids.ShortID `json:"pending"`
}

type GetRolesReply struct {
	Roles map[string]RoleInfo `json:"roles"`
}

func (s *Service) GetRoles(_ *http.Request, _ *GetRolesArgs, reply *GetRolesReply) error {
	return s.read(func(p *protocol.Protocol) error {
		reply.Roles = make(map[string]RoleInfo, 4)
		for _, role := range []authority.Role{authority.Governor, authority.Guardian, authority.Policy, authority.Vault} {
			holder, err := p.Authority.Holder(role)
			if err != nil {
				return err
			}
			pending, err := p.Authority.Pending(role)
			if err != nil {
				return err
			}
			reply.Roles[role.String()] = RoleInfo{
				Holder:  holder,
				Pending: pending,
			}
		}
		return nil
	})
}

type GetRecipientsArgs struct{}

type Recipient struct {
	Recipient  ids.ShortID `json:"recipient"`
	Rate       json.Uint64 `json:"rate"`
	NextReward string      `json:"nextReward"`
}

type GetRecipientsReply struct {
	Recipients []Recipient `json:"recipients"`
}

// GetRecipients lists the distributor's recipient slots.
func (s *Service) GetRecipients(_ *http.Request, _ *GetRecipientsArgs, reply *GetRecipientsReply) error {
	return s.read(func(p *protocol.Protocol) error {
		infos, err := p.Distributor.Recipients()
		if err != nil {
			return err
		}
		reply.Recipients = make([]Recipient, 0, len(infos))
		for _, info := range infos {
			next, err := p.Distributor.NextRewardAt(info.Rate)
			if err != nil {
				return err
			}
			reply.Recipients = append(reply.Recipients, Recipient{
				Recipient:  info.Recipient,
				Rate:       json.Uint64(info.Rate),
				NextReward: next.Dec(),
			})
		}
		return nil
	})
}

type GetEventsArgs struct {
	From  json.Uint64 `json:"from"`
	Limit int         `json:"limit"`
}

type GetEventsReply struct {
	Events []state.Event `json:"events"`
	// Next is the sequence number to continue from.
	Next json.Uint64 `json:"next"`
}

func (s *Service) GetEvents(_ *http.Request, args *GetEventsArgs, reply *GetEventsReply) error {
	limit := args.Limit
	if limit <= 0 || limit > s.maxEvents {
		limit = s.maxEvents
	}
	return s.read(func(p *protocol.Protocol) error {
		events, err := p.Store().Events(uint64(args.From), limit)
		if err != nil {
			return err
		}
		reply.Events = events
		reply.Next = args.From
		if n := len(events); n > 0 {
			reply.Next = json.Uint64(events[n-1].Seq + 1)
		}
		return nil
	})
}
