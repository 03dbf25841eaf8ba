package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"sova-txcore/bridge"
	"sova-txcore/decimals"
	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/txerrors"
	"sova-txcore/orchestrator"
)

// ActionRequest is the user input for any action. Amount is a decimal string in
// the units of the token being spent.
type ActionRequest struct {
	Token              string `json:"token,omitempty"`
	Amount             string `json:"amount,omitempty"`
	TargetToken        string `json:"target_token,omitempty"`
	SourceChainID      uint64 `json:"source_chain_id,omitempty"`
	DestinationChainID uint64 `json:"destination_chain_id,omitempty"`
	Recipient          string `json:"recipient,omitempty"`
}

func (s *TxCoreService) collateral(address string) (*datamodel.TokenDescriptor, error) {
	if !common.IsHexAddress(address) {
		return nil, txerrors.New(txerrors.KindInvalidRecipient, "%q is not a token address", address).WithStep(txerrors.StepValidate)
	}

	token, ok := s.collaterals[common.HexToAddress(address)]
	if !ok {
		return nil, txerrors.New(txerrors.KindInvalidRecipient, "%s is not a supported collateral", address).WithStep(txerrors.StepValidate)
	}

	return token, nil
}

func parseAmount(input string, tokenDecimals uint8) (*big.Int, error) {
	amount, err := decimals.ParseDecimalString(input, tokenDecimals)
	if err != nil {
		return nil, txerrors.Classify(err, txerrors.KindInvalidAmount, txerrors.StepValidate)
	}

	return amount, nil
}

func (s *TxCoreService) bridgeRequest(req ActionRequest) (bridge.Request, error) {
	amount, err := parseAmount(req.Amount, s.sovaBTC.Decimals())
	if err != nil {
		return bridge.Request{}, err
	}

	if !common.IsHexAddress(req.Recipient) {
		return bridge.Request{}, txerrors.New(txerrors.KindInvalidRecipient, "%q is not an address", req.Recipient).WithStep(txerrors.StepValidate)
	}

	source := req.SourceChainID
	if source == 0 {
		source = s.homeChainID
	}

	return bridge.Request{
		SourceChainID:      source,
		DestinationChainID: req.DestinationChainID,
		Amount:             amount,
		Recipient:          common.HexToAddress(req.Recipient),
	}, nil
}

// NewAction turns user input into an orchestrator action.
func (s *TxCoreService) NewAction(kind datamodel.Action, req ActionRequest) (orchestrator.Action, error) {
	switch kind {
	case datamodel.ActionWrap:
		token, err := s.collateral(req.Token)
		if err != nil {
			return nil, err
		}

		amount, err := parseAmount(req.Amount, token.Decimals())
		if err != nil {
			return nil, err
		}

		return orchestrator.NewWrapAction(s.homeChainID, s.contracts.wrapper, token, s.sovaBTC.Address(), amount), nil

	case datamodel.ActionStake, datamodel.ActionUnstake:
		amount, err := parseAmount(req.Amount, s.sovaBTC.Decimals())
		if err != nil {
			return nil, err
		}

		if kind == datamodel.ActionStake {
			return orchestrator.NewStakeAction(s.homeChainID, s.contracts.staking, s.sovaBTC.Address(), amount), nil
		}

		return orchestrator.NewUnstakeAction(s.homeChainID, s.contracts.staking, s.sovaBTC.Address(), amount, s.chain), nil

	case datamodel.ActionClaim:
		return orchestrator.NewClaimAction(s.homeChainID, s.contracts.staking, s.reward.Address(), s.chain), nil

	case datamodel.ActionRedeem:
		target, err := s.collateral(req.TargetToken)
		if err != nil {
			return nil, err
		}

		amount, err := parseAmount(req.Amount, s.sovaBTC.Decimals())
		if err != nil {
			return nil, err
		}

		return orchestrator.NewRedeemAction(s.homeChainID, s.contracts.queue, s.sovaBTC.Address(), target.Address(), amount), nil

	case datamodel.ActionBridge:
		bridgeReq, err := s.bridgeRequest(req)
		if err != nil {
			return nil, err
		}

		send, err := bridge.NewSendAction(s.bridge, bridgeReq)
		if err != nil {
			return nil, err
		}

		return send, nil
	}

	return nil, txerrors.New(txerrors.KindUnsupportedRoute, "unknown action %q", kind).WithStep(txerrors.StepValidate)
}

// Submit admits the action and runs it in the background.
func (s *TxCoreService) Submit(ctx context.Context, kind datamodel.Action, req ActionRequest) (orchestrator.FlowView, error) {
	action, err := s.NewAction(kind, req)
	if err != nil {
		return orchestrator.FlowView{}, err
	}

	view, err := s.flows.Start(ctx, action)
	if err != nil {
		return view, err
	}

	if send, ok := action.(*bridge.SendAction); ok {
		s.mu.Lock()
		s.transfers[view.ID] = send.Transfer()
		s.mu.Unlock()
	}

	return view, nil
}

func (s *TxCoreService) flowKey(id string) (orchestrator.Key, error) {
	flow, ok := s.flows.Lookup(id)
	if !ok {
		return orchestrator.Key{}, orchestrator.ErrNoFlow
	}

	return flow.Key(), nil
}

func (s *TxCoreService) Flows() []orchestrator.FlowView {
	return s.flows.Flows()
}

func (s *TxCoreService) SubscribeFlows(fn func(orchestrator.FlowView)) {
	s.flows.Subscribe(fn)
}

func (s *TxCoreService) Reset(id string) error {
	key, err := s.flowKey(id)
	if err != nil {
		return err
	}

	return s.flows.Reset(key)
}

func (s *TxCoreService) Abort(id string) error {
	key, err := s.flowKey(id)
	if err != nil {
		return err
	}

	return s.flows.Abort(key)
}

func (s *TxCoreService) Retry(ctx context.Context, id string) (orchestrator.FlowView, error) {
	key, err := s.flowKey(id)
	if err != nil {
		return orchestrator.FlowView{}, err
	}

	return s.flows.Retry(ctx, key)
}

type QuoteView struct {
	Route     *datamodel.BridgeRoute `json:"route"`
	Quote     *datamodel.BridgeQuote `json:"quote"`
	AmountLD  string                 `json:"amount_ld"`
	MinAmount string                 `json:"min_amount_ld"`
	// FeeCovered is false when the native balance is below the fee.
	FeeCovered bool `json:"fee_covered"`
}

// Quote builds the transfer and returns a fresh fee quote for it.
func (s *TxCoreService) Quote(ctx context.Context, req ActionRequest) (*QuoteView, error) {
	bridgeReq, err := s.bridgeRequest(req)
	if err != nil {
		return nil, err
	}

	payload, quote, err := s.bridge.Quote(ctx, bridgeReq)
	if err != nil {
		return nil, err
	}

	view := &QuoteView{
		Route:     &payload.Route,
		Quote:     quote,
		AmountLD:  payload.Param.AmountLD.String(),
		MinAmount: payload.Param.MinAmountLD.String(),
	}

	identity, err := s.wallet.Identity(ctx)
	if err != nil {
		return view, nil
	}

	if err = s.bridge.CheckFee(ctx, bridgeReq.SourceChainID, identity.Address, quote); err == nil {
		view.FeeCovered = true
	} else if txerrors.KindOf(err) != txerrors.KindInsufficientFeeBalance {
		log.WithError(err).Warn("fee balance check failed")
	}

	return view, nil
}

func (s *TxCoreService) Transfer(id string) (*bridge.Transfer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfer, ok := s.transfers[id]

	return transfer, ok
}

// ObserveSettlement marks the bridge transfer of flow id delivered on destination.
func (s *TxCoreService) ObserveSettlement(id string) (bridge.View, error) {
	transfer, ok := s.Transfer(id)
	if !ok {
		return bridge.View{}, orchestrator.ErrNoFlow
	}

	if err := transfer.ObserveDestinationSettlement(); err != nil {
		return transfer.View(), err
	}

	return transfer.View(), nil
}
