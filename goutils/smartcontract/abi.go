package smartcontract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const wrapperABIJSON = `[
	{"inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"name":"deposit","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const stakingABIJSON = `[
	{"inputs":[{"name":"amount","type":"uint256"}],"name":"stake","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"amount","type":"uint256"}],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"getReward","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"rewardRate","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"}],"name":"earned","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"periodFinish","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const redemptionQueueABIJSON = `[
	{"inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"name":"redeem","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"user","type":"address"}],"name":"redemptionRequests","outputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"requestTime","type":"uint256"},{"name":"fulfilled","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"redemptionDelay","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const sendParamTuple = `{"name":"_sendParam","type":"tuple","components":[
	{"name":"dstEid","type":"uint32"},
	{"name":"to","type":"bytes32"},
	{"name":"amountLD","type":"uint256"},
	{"name":"minAmountLD","type":"uint256"},
	{"name":"extraOptions","type":"bytes"},
	{"name":"composeMsg","type":"bytes"},
	{"name":"oftCmd","type":"bytes"}]}`

const messagingFeeTuple = `{"name":"_fee","type":"tuple","components":[
	{"name":"nativeFee","type":"uint256"},
	{"name":"lzTokenFee","type":"uint256"}]}`

var oftABIJSON = `[
	{"inputs":[` + sendParamTuple + `,{"name":"_payInLzToken","type":"bool"}],"name":"quoteSend","outputs":[` + messagingFeeTuple + `],"stateMutability":"view","type":"function"},
	{"inputs":[` + sendParamTuple + `,` + messagingFeeTuple + `,{"name":"_refundAddress","type":"address"}],"name":"send","outputs":[
		{"name":"msgReceipt","type":"tuple","components":[{"name":"guid","type":"bytes32"},{"name":"nonce","type":"uint64"},` + messagingFeeTuple + `]},
		{"name":"oftReceipt","type":"tuple","components":[{"name":"amountSentLD","type":"uint256"},{"name":"amountReceivedLD","type":"uint256"}]}
	],"stateMutability":"payable","type":"function"}
]`

var (
	erc20ABI           = mustParseABI(erc20ABIJSON)
	wrapperABI         = mustParseABI(wrapperABIJSON)
	stakingABI         = mustParseABI(stakingABIJSON)
	redemptionQueueABI = mustParseABI(redemptionQueueABIJSON)
	oftABI             = mustParseABI(oftABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}

	return parsed
}
