package bridge

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"sova-txcore/decimals"
	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
)

const (
	maxBps = 10000

	// DefaultSharedDecimals is the precision OFT amounts travel with between
	// chains; local amounts below it are dust and are not sent.
	DefaultSharedDecimals uint8 = 6
)

// Payload is a fully built send. Hash fingerprints Param so a quote can be tied
// to the exact parameters it was obtained for.
type Payload struct {
	Route     datamodel.BridgeRoute
	OFT       common.Address
	Recipient common.Address
	Param     smartcontract.SendParam
	Hash      common.Hash
}

// Validate checks route support and transfer sanity before any network call.
func Validate(routes *RouteTable, sourceChainID, destinationChainID uint64, amount *big.Int, recipient common.Address) (*datamodel.BridgeRoute, error) {
	route, err := routes.Resolve(sourceChainID, destinationChainID)
	if err != nil {
		return nil, err
	}

	if err := decimals.ValidateOnChain(amount); err != nil {
		return nil, txerrors.Classify(err, txerrors.KindInvalidAmount, txerrors.StepValidate)
	}

	if recipient == (common.Address{}) {
		return nil, txerrors.New(txerrors.KindInvalidRecipient, "recipient is the zero address").WithStep(txerrors.StepValidate)
	}

	return route, nil
}

// RecipientBytes32 left-pads an EVM address into the transport's bytes32 form.
func RecipientBytes32(recipient common.Address) [32]byte {
	var out [32]byte

	copy(out[:], common.LeftPadBytes(recipient.Bytes(), 32))

	return out
}

// MinAmount applies a slippage tolerance in basis points, flooring. A zero
// tolerance gives an exact transfer.
func MinAmount(amount *big.Int, slippageBps uint32) *big.Int {
	if slippageBps > maxBps {
		slippageBps = maxBps
	}

	out := new(big.Int).Mul(amount, big.NewInt(int64(maxBps-slippageBps)))

	return out.Div(out, big.NewInt(maxBps))
}

// RemoveDust floors amount to the shared precision.
func RemoveDust(amount *big.Int, localDecimals, sharedDecimals uint8) *big.Int {
	if localDecimals <= sharedDecimals {
		return new(big.Int).Set(amount)
	}

	rate := decimals.Pow10(localDecimals - sharedDecimals)
	out := new(big.Int).Div(amount, rate)

	return out.Mul(out, rate)
}

// BuildSendPayload assembles the OFT SendParam for amount, given in the token's
// local decimals.
func BuildSendPayload(route datamodel.BridgeRoute, oft common.Address, amount *big.Int, localDecimals uint8, recipient common.Address, slippageBps uint32, options AdapterOptions) (*Payload, error) {
	sendable := RemoveDust(amount, localDecimals, DefaultSharedDecimals)
	if sendable.Sign() <= 0 {
		return nil, txerrors.New(txerrors.KindInvalidAmount, "amount %s is below the transferable precision", amount).WithStep(txerrors.StepValidate)
	}

	if options.NativeDrop != nil && options.NativeDrop.Sign() > 0 && options.NativeDropReceiver == (common.Address{}) {
		options.NativeDropReceiver = recipient
	}

	extra, err := options.Encode()
	if err != nil {
		return nil, txerrors.Wrap(txerrors.KindInvalidAmount, err, "invalid adapter options").WithStep(txerrors.StepValidate)
	}

	param := smartcontract.SendParam{
		DstEid:       route.DestinationEndpointID,
		To:           RecipientBytes32(recipient),
		AmountLD:     sendable,
		MinAmountLD:  RemoveDust(MinAmount(sendable, slippageBps), localDecimals, DefaultSharedDecimals),
		ExtraOptions: extra,
		ComposeMsg:   []byte{},
		OftCmd:       []byte{},
	}

	hash, err := PayloadHash(oft, param)
	if err != nil {
		return nil, txerrors.Wrap(txerrors.KindInvalidAmount, err, "cannot encode send parameters").WithStep(txerrors.StepValidate)
	}

	return &Payload{
		Route:     route,
		OFT:       oft,
		Recipient: recipient,
		Param:     param,
		Hash:      hash,
	}, nil
}

// PayloadHash is keccak256 over the ABI-encoded quote arguments and the OFT address.
func PayloadHash(oft common.Address, param smartcontract.SendParam) (common.Hash, error) {
	encoded, err := smartcontract.EncodeArguments(smartcontract.QuoteSend{OFT: oft, Param: param})
	if err != nil {
		return common.Hash{}, err
	}

	return crypto.Keccak256Hash(oft.Bytes(), encoded), nil
}
