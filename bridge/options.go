package bridge

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Type-3 executor options layout:
//   0x0003 | (workerID:1 | size:2 | optionType:1 | option:size-1)*
const (
	optionsType3            uint16 = 3
	executorWorkerID        uint8  = 1
	executorLzReceiveOption uint8  = 1
	executorNativeDrop      uint8  = 2
)

// AdapterOptions are the destination execution parameters carried with a send.
type AdapterOptions struct {
	DestinationGasLimit uint64
	// DestinationGasValue is native value forwarded with lzReceive, normally nil.
	DestinationGasValue *big.Int
	// NativeDrop is native token airdropped to the receiver on destination.
	NativeDrop         *big.Int
	NativeDropReceiver common.Address
}

func uint128Bytes(v *big.Int, field string) ([]byte, error) {
	u, overflow := uint256.FromBig(v)
	if overflow || v.Sign() < 0 || u.BitLen() > 128 {
		return nil, fmt.Errorf("%s %s does not fit uint128", field, v)
	}

	b := u.Bytes32()

	return b[16:], nil
}

func appendExecutorOption(out []byte, optionType uint8, option []byte) []byte {
	out = append(out, executorWorkerID)
	out = binary.BigEndian.AppendUint16(out, uint16(len(option)+1))
	out = append(out, optionType)

	return append(out, option...)
}

// Encode serializes the options in the versioned type-3 format.
func (o AdapterOptions) Encode() ([]byte, error) {
	out := binary.BigEndian.AppendUint16(nil, optionsType3)

	if o.DestinationGasLimit > 0 {
		gas, err := uint128Bytes(new(big.Int).SetUint64(o.DestinationGasLimit), "gas limit")
		if err != nil {
			return nil, err
		}

		option := gas

		if o.DestinationGasValue != nil && o.DestinationGasValue.Sign() > 0 {
			value, err := uint128Bytes(o.DestinationGasValue, "gas value")
			if err != nil {
				return nil, err
			}

			option = append(option, value...)
		}

		out = appendExecutorOption(out, executorLzReceiveOption, option)
	}

	if o.NativeDrop != nil && o.NativeDrop.Sign() > 0 {
		if o.NativeDropReceiver == (common.Address{}) {
			return nil, fmt.Errorf("native drop requires a receiver")
		}

		amount, err := uint128Bytes(o.NativeDrop, "native drop")
		if err != nil {
			return nil, err
		}

		option := append(amount, common.LeftPadBytes(o.NativeDropReceiver.Bytes(), 32)...)
		out = appendExecutorOption(out, executorNativeDrop, option)
	}

	return out, nil
}
