package bridge

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"sova-txcore/caching"
	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
	"sova-txcore/orchestrator"
)

// SendAction runs a Transfer as an orchestrator flow. The flow is keyed on the
// source chain's bridged token.
type SendAction struct {
	transfer *Transfer
	source   Endpoint
}

var (
	_ orchestrator.Action     = (*SendAction)(nil)
	_ orchestrator.TxObserver = (*SendAction)(nil)
)

func NewSendAction(service *Service, req Request) (*SendAction, error) {
	src, ok := service.routes.Endpoint(req.SourceChainID)
	if !ok {
		return nil, txerrors.New(txerrors.KindUnsupportedRoute, "chain %d has no bridge endpoint", req.SourceChainID).WithStep(txerrors.StepValidate)
	}

	return &SendAction{transfer: service.NewTransfer(req), source: src}, nil
}

func (a *SendAction) Transfer() *Transfer { return a.transfer }

func (a *SendAction) Kind() datamodel.Action { return datamodel.ActionBridge }
func (a *SendAction) ChainID() uint64        { return a.source.ChainID }
func (a *SendAction) Token() common.Address  { return a.source.Token }

func (a *SendAction) Validate() error {
	_, err := a.transfer.service.Validate(a.transfer.request)

	return err
}

// Spend goes through an allowance only when the source OFT is an adapter over
// the underlying token.
func (a *SendAction) Spend() *orchestrator.Spend {
	spend := &orchestrator.Spend{Token: a.source.Token, Amount: a.transfer.request.Amount}

	if a.source.RequiresApproval {
		oft := a.source.OFT
		spend.Spender = &oft
	}

	return spend
}

func (a *SendAction) Prepare(ctx context.Context, identity datamodel.Identity) error {
	return a.transfer.Prepare(ctx, identity)
}

func (a *SendAction) Call(identity datamodel.Identity) (smartcontract.Call, *big.Int) {
	return a.transfer.Call(identity)
}

func (a *SendAction) Submitted(tx *smartcontract.PendingTx) {
	a.transfer.Submitted(tx)
}

func (a *SendAction) Resolved(receipt *smartcontract.Receipt, err error) {
	a.transfer.Resolved(receipt, err)
}

func (a *SendAction) RefreshKeys(identity datamodel.Identity) []caching.Key {
	keys := []caching.Key{
		caching.BalanceKey(a.source.ChainID, a.source.Token, identity.Address),
		caching.NativeBalanceKey(a.source.ChainID, identity.Address),
	}

	if a.source.RequiresApproval {
		keys = append(keys, caching.AllowanceKey(a.source.ChainID, a.source.Token, identity.Address, a.source.OFT))
	}

	return keys
}
