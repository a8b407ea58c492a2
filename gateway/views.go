package gateway

import (
	"math/big"

	"vaultrisk/native/pool"
)

// MarketView is the JSON form of a vault's market state.
type MarketView struct {
	BorrowIndex        string `json:"borrowIndex"`
	Epoch              uint64 `json:"epoch"`
	RateAtTarget       uint64 `json:"rateAtTarget"`
	UnrealizedInterest string `json:"unrealizedInterest"`
}

type VaultView struct {
	Vault       string     `json:"vault"`
	Market      MarketView `json:"market"`
	Deposited   string     `json:"deposited"`
	InAMM       string     `json:"inAMM"`
	TotalAssets string     `json:"totalAssets"`
	TotalSupply string     `json:"totalSupply"`
	Utilization uint64     `json:"utilization"`
}

type AccountView struct {
	Account    string    `json:"account"`
	Shares     [2]string `json:"shares"`
	Assets     [2]string `json:"assets"`
	NetBorrows [2]string `json:"netBorrows"`
	LegCount   uint64    `json:"legCount"`
	Positions  []string  `json:"positions"`
}

func NewVaultView(s pool.VaultSnapshot) VaultView {
	return VaultView{
		Vault: s.Vault.Hex(),
		Market: MarketView{
			BorrowIndex:        s.Market.BorrowIndex().String(),
			Epoch:              s.Market.Epoch(),
			RateAtTarget:       s.Market.RateAtTarget(),
			UnrealizedInterest: s.Market.UnrealizedInterest().String(),
		},
		Deposited:   amount(s.Deposited),
		InAMM:       amount(s.InAMM),
		TotalAssets: amount(s.TotalAssets),
		TotalSupply: amount(s.TotalSupply),
		Utilization: s.Utilization,
	}
}

func NewAccountView(s pool.AccountSnapshot) AccountView {
	view := AccountView{
		Account:   s.Account.Hex(),
		LegCount:  s.Positions.LegCount(),
		Positions: make([]string, 0, len(s.Open)),
	}
	for t := range s.Shares {
		view.Shares[t] = amount(s.Shares[t])
		view.Assets[t] = amount(s.Assets[t])
		view.NetBorrows[t] = amount(s.NetBorrows[t])
	}
	for _, key := range s.Open {
		view.Positions = append(view.Positions, key.Hex())
	}
	return view
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
