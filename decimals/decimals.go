// Package decimals converts amounts between token-native precision and the
// protocol's canonical 8-decimal unit, and parses and formats user-facing strings.
//
// All on-chain amount math is integer math on *big.Int. Down-scaling from a token
// with more than 8 decimals floors: the sub-canonical remainder is dropped and is
// never rounded up.
package decimals

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"sova-txcore/goutils/txerrors"
)

const (
	// CanonicalDecimals is the precision of the protocol accounting unit (sova-unit).
	CanonicalDecimals uint8 = 8
	// MaxDecimals is the highest token precision accepted.
	MaxDecimals uint8 = 18
)

var (
	pow10Table [2*MaxDecimals + 1]*big.Int

	decimalPattern = regexp.MustCompile(`^\d*\.?\d*$`)

	maxUint256 = new(uint256.Int).SetAllOne()
)

func init() {
	ten := big.NewInt(10)
	pow10Table[0] = big.NewInt(1)

	for i := 1; i < len(pow10Table); i++ {
		pow10Table[i] = new(big.Int).Mul(pow10Table[i-1], ten)
	}
}

// Pow10 returns a fresh 10^n.
func Pow10(n uint8) *big.Int {
	if int(n) < len(pow10Table) {
		return new(big.Int).Set(pow10Table[n])
	}

	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Rescale converts amount from one precision to another. Up-scaling is exact,
// down-scaling floors.
func Rescale(amount *big.Int, from, to uint8) *big.Int {
	if amount == nil {
		return new(big.Int)
	}

	switch {
	case from == to:
		return new(big.Int).Set(amount)
	case from < to:
		return new(big.Int).Mul(amount, Pow10(to-from))
	default:
		// Div is Euclidean, which floors for a positive divisor.
		return new(big.Int).Div(amount, Pow10(from-to))
	}
}

// ToCanonical scales a token-native amount to the canonical unit. Exact when
// tokenDecimals <= 8, floored otherwise.
func ToCanonical(amount *big.Int, tokenDecimals uint8) *big.Int {
	return Rescale(amount, tokenDecimals, CanonicalDecimals)
}

// FromCanonical scales a canonical amount to the token-native unit. Exact when
// tokenDecimals >= 8, floored otherwise.
func FromCanonical(amount *big.Int, tokenDecimals uint8) *big.Int {
	return Rescale(amount, CanonicalDecimals, tokenDecimals)
}

// ParseDecimalString parses a user-entered decimal like "0.5" into an integer
// scaled by 10^decimals. Inputs with more fractional digits than decimals are
// rejected rather than truncated.
func ParseDecimalString(input string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(input)

	if !decimalPattern.MatchString(s) || s == "" || s == "." {
		return nil, txerrors.New(txerrors.KindInvalidAmount, "%q is not a decimal number", input)
	}

	intPart, fracPart, _ := strings.Cut(s, ".")

	if len(fracPart) > int(decimals) {
		return nil, txerrors.New(txerrors.KindInvalidAmount,
			"%q has %d fractional digits, token supports %d", input, len(fracPart), decimals)
	}

	digits := intPart + fracPart + strings.Repeat("0", int(decimals)-len(fracPart))
	if digits == "" {
		digits = "0"
	}

	value, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, txerrors.New(txerrors.KindInvalidAmount, "%q is not a decimal number", input)
	}

	return value, nil
}

// FormatDecimal renders amount (scaled by 10^decimals) for display. Digits beyond
// maxDisplayDecimals are truncated, not rounded; a negative maxDisplayDecimals
// shows full precision. Trailing zeros are dropped, so zero renders as "0".
func FormatDecimal(amount *big.Int, decimals uint8, maxDisplayDecimals int) string {
	if amount == nil {
		return "0"
	}

	d := decimal.NewFromBigInt(amount, -int32(decimals))

	if maxDisplayDecimals >= 0 && maxDisplayDecimals < int(decimals) {
		d = d.Truncate(int32(maxDisplayDecimals))
	}

	return d.String()
}

// ValidateOnChain checks that amount is a positive value representable as uint256.
func ValidateOnChain(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return txerrors.New(txerrors.KindInvalidAmount, "amount must be greater than zero")
	}

	if _, overflow := uint256.FromBig(amount); overflow {
		return txerrors.New(txerrors.KindInvalidAmount, "amount %s overflows uint256", amount)
	}

	return nil
}

// MaxUint256 returns the unlimited-approval sentinel.
func MaxUint256() *big.Int {
	return maxUint256.ToBig()
}
