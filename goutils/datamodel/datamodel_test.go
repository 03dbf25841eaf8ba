package datamodel

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestNewTokenDescriptor(t *testing.T) {
	addr := common.HexToAddress("0x1")

	tok, err := NewTokenDescriptor(addr, "WBTC", 8, "wbtc.svg")
	assert.NoError(t, err)
	assert.Equal(t, addr, tok.Address())
	assert.Equal(t, "WBTC", tok.Symbol())
	assert.Equal(t, uint8(8), tok.Decimals())
	assert.Equal(t, "wbtc.svg", tok.Icon())

	_, err = NewTokenDescriptor(addr, "BAD", 19, "")
	assert.ErrorIs(t, err, ErrInvalidTokenDecimals)

	_, err = NewTokenDescriptor(addr, "BAD", -1, "")
	assert.ErrorIs(t, err, ErrInvalidTokenDecimals)
}

func TestRedemptionRequestEmpty(t *testing.T) {
	var nilReq *RedemptionRequest
	assert.True(t, nilReq.Empty())
	assert.True(t, (&RedemptionRequest{CanonicalAmount: big.NewInt(0)}).Empty())
	assert.False(t, (&RedemptionRequest{CanonicalAmount: big.NewInt(5), RequestTimestamp: 10}).Empty())
}

func TestActionValid(t *testing.T) {
	assert.True(t, ActionBridge.Valid())
	assert.False(t, Action("mint").Valid())
}
