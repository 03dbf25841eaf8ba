package bridge

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/settings"
	"sova-txcore/goutils/txerrors"
)

type Endpoint struct {
	ChainID          uint64
	EndpointID       uint32
	OFT              common.Address
	// Token is what the user spends on this chain: the OFT itself, or the
	// underlying token an adapter locks.
	Token            common.Address
	RequiresApproval bool
}

// RouteTable is the static set of chains a transfer may use. Routes are resolved
// before any network call.
type RouteTable struct {
	endpoints map[uint64]Endpoint
}

// NewRouteTable builds the table from the configured chains. Adapter chains lock
// underlying, the home sovaBTC token.
func NewRouteTable(chains []*settings.Chain, underlying common.Address) *RouteTable {
	table := &RouteTable{endpoints: make(map[uint64]Endpoint)}

	for _, chain := range chains {
		if chain.EndpointID == 0 || !common.IsHexAddress(chain.OFTAddress) {
			continue
		}

		endpoint := Endpoint{
			ChainID:          chain.ChainID,
			EndpointID:       chain.EndpointID,
			OFT:              common.HexToAddress(chain.OFTAddress),
			RequiresApproval: chain.OFTRequiresApproval,
		}

		endpoint.Token = endpoint.OFT
		if endpoint.RequiresApproval {
			endpoint.Token = underlying
		}

		table.endpoints[chain.ChainID] = endpoint
	}

	return table
}

func (t *RouteTable) Endpoint(chainID uint64) (Endpoint, bool) {
	e, ok := t.endpoints[chainID]

	return e, ok
}

// Resolve fails with UnsupportedRoute when source equals destination or either
// side has no endpoint.
func (t *RouteTable) Resolve(sourceChainID, destinationChainID uint64) (*datamodel.BridgeRoute, error) {
	if sourceChainID == destinationChainID {
		return nil, txerrors.New(txerrors.KindUnsupportedRoute, "source and destination are both chain %d", sourceChainID).WithStep(txerrors.StepValidate)
	}

	src, ok := t.endpoints[sourceChainID]
	if !ok {
		return nil, txerrors.New(txerrors.KindUnsupportedRoute, "no endpoint for source chain %d", sourceChainID).WithStep(txerrors.StepValidate)
	}

	dst, ok := t.endpoints[destinationChainID]
	if !ok {
		return nil, txerrors.New(txerrors.KindUnsupportedRoute, "no endpoint for destination chain %d", destinationChainID).WithStep(txerrors.StepValidate)
	}

	return &datamodel.BridgeRoute{
		SourceChainID:         src.ChainID,
		DestinationChainID:    dst.ChainID,
		SourceEndpointID:      src.EndpointID,
		DestinationEndpointID: dst.EndpointID,
	}, nil
}

// Routes lists every supported ordered pair.
func (t *RouteTable) Routes() []datamodel.BridgeRoute {
	ids := make([]uint64, 0, len(t.endpoints))
	for id := range t.endpoints {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	routes := make([]datamodel.BridgeRoute, 0, len(ids)*(len(ids)-1))

	for _, src := range ids {
		for _, dst := range ids {
			if src == dst {
				continue
			}

			routes = append(routes, datamodel.BridgeRoute{
				SourceChainID:         src,
				DestinationChainID:    dst,
				SourceEndpointID:      t.endpoints[src].EndpointID,
				DestinationEndpointID: t.endpoints[dst].EndpointID,
			})
		}
	}

	return routes
}
