package bridge

import (
	"context"
	"math/big"
	"time"

	log "github.com/sirupsen/logrus"

	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/smartcontract"
	"sova-txcore/goutils/txerrors"
)

// Quoter obtains non-binding fee quotes from the source OFT.
type Quoter struct {
	reader smartcontract.Reader
	ttl    time.Duration
	now    func() time.Time
}

func NewQuoter(reader smartcontract.Reader, ttl time.Duration) *Quoter {
	return &Quoter{reader: reader, ttl: ttl, now: time.Now}
}

func (q *Quoter) Quote(ctx context.Context, payload *Payload) (*datamodel.BridgeQuote, error) {
	fee, err := smartcontract.ReadQuote(ctx, q.reader, payload.Route.SourceChainID, smartcontract.QuoteSend{
		OFT:   payload.OFT,
		Param: payload.Param,
	})
	if err != nil {
		return nil, txerrors.Classify(err, txerrors.KindContractRead, txerrors.StepQuote)
	}

	quote := &datamodel.BridgeQuote{
		NativeFee:        fee.NativeFee,
		ProtocolTokenFee: fee.LzTokenFee,
		QuotedAt:         q.now(),
		PayloadHash:      payload.Hash,
	}

	log.WithField("dst_eid", payload.Param.DstEid).WithField("native_fee", quote.NativeFee.String()).Debug("bridge fee quoted")

	return quote, nil
}

// CheckFresh fails with QuoteStale when the quote was taken for other parameters
// or is older than the TTL.
func (q *Quoter) CheckFresh(quote *datamodel.BridgeQuote, payload *Payload) error {
	if quote == nil {
		return txerrors.New(txerrors.KindQuoteStale, "no quote").WithStep(txerrors.StepQuote)
	}

	if quote.PayloadHash != payload.Hash {
		return txerrors.New(txerrors.KindQuoteStale, "quote was taken for different send parameters").WithStep(txerrors.StepQuote)
	}

	if age := q.now().Sub(quote.QuotedAt); age > q.ttl {
		return txerrors.New(txerrors.KindQuoteStale, "quote is %s old, ttl %s", age.Round(time.Second), q.ttl).WithStep(txerrors.StepQuote)
	}

	return nil
}

// Ensure returns quote when still fresh and otherwise re-quotes. A stale quote is
// never used.
func (q *Quoter) Ensure(ctx context.Context, payload *Payload, quote *datamodel.BridgeQuote) (*datamodel.BridgeQuote, error) {
	if err := q.CheckFresh(quote, payload); err == nil {
		return quote, nil
	} else if quote != nil {
		log.WithError(err).Info("re-quoting bridge fee")
	}

	return q.Quote(ctx, payload)
}

// CheckFeeBalance is the pre-flight for the native fee.
func CheckFeeBalance(nativeBalance *big.Int, quote *datamodel.BridgeQuote) error {
	if nativeBalance == nil {
		nativeBalance = new(big.Int)
	}

	if nativeBalance.Cmp(quote.NativeFee) < 0 {
		return txerrors.New(txerrors.KindInsufficientFeeBalance, "native balance %s is below the fee %s", nativeBalance, quote.NativeFee).WithStep(txerrors.StepQuote)
	}

	return nil
}
