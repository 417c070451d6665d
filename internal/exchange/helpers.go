package exchange

import (
	"math/big"

	"github.com/betbot/aquoter/internal/ctf"
	"github.com/betbot/aquoter/internal/exchange/wire"
	"github.com/shopspring/decimal"
)

func decimalFromInt(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func bigFromString(s string) *big.Int {
	n := new(big.Int)
	if _, ok := n.SetString(s, 10); ok {
		return n
	}
	// asset IDs are conditional-token IDs, decimal strings on this venue;
	// fall back to zero rather than panicking on an unexpected format.
	return big.NewInt(0)
}

func bigFromInt(n int64) *big.Int { return big.NewInt(n) }

// exchangeContractAddress is the CTF Exchange contract for the configured
// chain, shared with internal/ctf's merge/redeem collaborator.
func exchangeContractAddress(chainID wire.Chain) string {
	cfg, err := ctf.GetContractConfig(chainID)
	if err != nil {
		return ""
	}
	return cfg.Exchange
}
