package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"sova-txcore/decimals"
	"sova-txcore/goutils/datamodel"
	"sova-txcore/redemption"
	"sova-txcore/refresh"
	"sova-txcore/staking"
)

const displayDecimals = 8

type TokenBalance struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Icon     string `json:"icon,omitempty"`
	Raw      string `json:"raw"`
	Display  string `json:"display"`
	// Canonical is the balance in sova-units, floored.
	Canonical string `json:"canonical"`
}

type Allowance struct {
	Symbol  string `json:"symbol"`
	Spender string `json:"spender"`
	Raw     string `json:"raw"`
}

type RedemptionView struct {
	Request *datamodel.RedemptionRequest `json:"request"`
	Status  *redemption.Status           `json:"status"`
	Display string                       `json:"display"`
}

type StakingView struct {
	Snapshot  *datamodel.StakingPoolSnapshot `json:"snapshot"`
	Economics *staking.Economics             `json:"economics"`
	Staked    string                         `json:"staked"`
	Earned    string                         `json:"earned"`
}

// Dashboard is the latest view of the account. Sections are nil until their
// first refresh; Redemption stays nil while the user has no request.
type Dashboard struct {
	Account       string                  `json:"account"`
	ChainID       uint64                  `json:"chain_id"`
	NativeBalance string                  `json:"native_balance"`
	Balances      []TokenBalance          `json:"balances"`
	Allowances    []Allowance             `json:"allowances"`
	Redemption    *RedemptionView         `json:"redemption"`
	Staking       *StakingView            `json:"staking"`
	Routes        []datamodel.BridgeRoute `json:"routes"`
	UpdatedAt     map[string]time.Time    `json:"updated_at"`
}

func (s *TxCoreService) State() Dashboard {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.dashboard
	out.Balances = append([]TokenBalance(nil), s.dashboard.Balances...)
	out.Allowances = append([]Allowance(nil), s.dashboard.Allowances...)
	out.UpdatedAt = make(map[string]time.Time, len(s.dashboard.UpdatedAt))

	for topic, at := range s.dashboard.UpdatedAt {
		out.UpdatedAt[topic] = at
	}

	return out
}

func (s *TxCoreService) update(topic refresh.Topic, identity datamodel.Identity, apply func(d *Dashboard)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// a different account invalidates every section
	if s.dashboard.Account != identity.Address.Hex() || s.dashboard.ChainID != identity.ChainID {
		routes := s.dashboard.Routes
		s.dashboard = Dashboard{Account: identity.Address.Hex(), ChainID: identity.ChainID, Routes: routes}
	}

	apply(&s.dashboard)

	if s.dashboard.UpdatedAt == nil {
		s.dashboard.UpdatedAt = make(map[string]time.Time)
	}

	s.dashboard.UpdatedAt[string(topic)] = s.now()
}

func (s *TxCoreService) identity(ctx context.Context) (datamodel.Identity, bool) {
	identity, err := s.wallet.Identity(ctx)
	if err != nil {
		log.WithError(err).Warn("wallet identity unavailable, skipping refresh")

		return identity, false
	}

	return identity, true
}

func (s *TxCoreService) sortedCollaterals() []*datamodel.TokenDescriptor {
	tokens := make([]*datamodel.TokenDescriptor, 0, len(s.collaterals))
	for _, token := range s.collaterals {
		tokens = append(tokens, token)
	}

	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Symbol() < tokens[j].Symbol() })

	return tokens
}

func (s *TxCoreService) RefreshBalances(ctx context.Context, tick refresh.Tick) {
	identity, ok := s.identity(ctx)
	if !ok {
		return
	}

	tokens := append(s.sortedCollaterals(), s.sovaBTC)
	balances := make([]TokenBalance, 0, len(tokens))

	for _, token := range tokens {
		raw, err := s.chain.Balance(ctx, s.homeChainID, token.Address(), identity.Address, false)
		if err != nil {
			log.WithError(err).WithField("token", token.Symbol()).Error("failed to refresh balance")

			return
		}

		balances = append(balances, TokenBalance{
			Symbol:    token.Symbol(),
			Address:   token.Address().Hex(),
			Decimals:  token.Decimals(),
			Icon:      token.Icon(),
			Raw:       raw.String(),
			Display:   decimals.FormatDecimal(raw, token.Decimals(), displayDecimals),
			Canonical: decimals.ToCanonical(raw, token.Decimals()).String(),
		})
	}

	native, err := s.chain.NativeBalance(ctx, s.homeChainID, identity.Address, false)
	if err != nil {
		log.WithError(err).Error("failed to refresh native balance")

		return
	}

	s.update(refresh.TopicBalance, identity, func(d *Dashboard) {
		d.Balances = balances
		d.NativeBalance = decimals.FormatDecimal(native, 18, 6)
	})
}

func (s *TxCoreService) RefreshAllowances(ctx context.Context, tick refresh.Tick) {
	identity, ok := s.identity(ctx)
	if !ok {
		return
	}

	collaterals := s.sortedCollaterals()
	allowances := make([]Allowance, 0, len(collaterals)+2)

	add := func(token, spender common.Address, symbol string) bool {
		raw, err := s.chain.Allowance(ctx, s.homeChainID, token, identity.Address, spender, false)
		if err != nil {
			log.WithError(err).WithField("token", symbol).Error("failed to refresh allowance")

			return false
		}

		allowances = append(allowances, Allowance{Symbol: symbol, Spender: spender.Hex(), Raw: raw.String()})

		return true
	}

	for _, token := range collaterals {
		if !add(token.Address(), s.contracts.wrapper, token.Symbol()) {
			return
		}
	}

	if !add(s.sovaBTC.Address(), s.contracts.staking, s.sovaBTC.Symbol()) || !add(s.sovaBTC.Address(), s.contracts.queue, s.sovaBTC.Symbol()) {
		return
	}

	s.update(refresh.TopicAllowance, identity, func(d *Dashboard) {
		d.Allowances = allowances
	})
}

func (s *TxCoreService) RefreshQueue(ctx context.Context, tick refresh.Tick) {
	identity, ok := s.identity(ctx)
	if !ok {
		return
	}

	req, err := s.chain.RedemptionRequest(ctx, s.homeChainID, s.contracts.queue, identity.Address)
	if err != nil {
		log.WithError(err).Error("failed to refresh redemption request")

		return
	}

	delay, err := s.chain.QueueDelay(ctx, s.homeChainID, s.contracts.queue)
	if err != nil {
		log.WithError(err).Error("failed to refresh redemption delay")

		return
	}

	status, err := redemption.Compute(req, delay, s.now())
	if errors.Is(err, redemption.ErrNoActiveRequest) {
		s.update(refresh.TopicQueue, identity, func(d *Dashboard) { d.Redemption = nil })

		return
	}

	if err != nil {
		log.WithError(err).Error("failed to compute redemption status")

		return
	}

	view := &RedemptionView{
		Request: req,
		Status:  status,
		Display: decimals.FormatDecimal(req.CanonicalAmount, decimals.CanonicalDecimals, displayDecimals),
	}

	s.update(refresh.TopicQueue, identity, func(d *Dashboard) { d.Redemption = view })
}

func (s *TxCoreService) RefreshStaking(ctx context.Context, tick refresh.Tick) {
	identity, ok := s.identity(ctx)
	if !ok {
		return
	}

	snapshot, err := s.chain.StakingSnapshot(ctx, s.homeChainID, s.contracts.staking, identity.Address, false)
	if err != nil {
		log.WithError(err).Error("failed to refresh staking snapshot")

		return
	}

	view := &StakingView{
		Snapshot:  snapshot,
		Economics: staking.Summarize(snapshot, s.reward.Decimals(), s.sovaBTC.Decimals(), s.now()),
		Staked:    decimals.FormatDecimal(snapshot.UserStaked, s.sovaBTC.Decimals(), displayDecimals),
		Earned:    decimals.FormatDecimal(snapshot.UserEarned, s.reward.Decimals(), displayDecimals),
	}

	s.update(refresh.TopicStaking, identity, func(d *Dashboard) { d.Staking = view })
}
