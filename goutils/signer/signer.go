package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"

	"sova-txcore/goutils/datamodel"
	"sova-txcore/goutils/settings"
	"sova-txcore/goutils/smartcontract"
)

func GetPrivateKey(privateKey string) (*ecdsa.PrivateKey, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		log.WithError(err).Error("failed to decode private key")

		return nil, err
	}

	pk, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		log.WithError(err).Error("failed to convert private key to ECDSA")

		return nil, err
	}

	return pk, nil
}

// KeyedWallet is a Wallet backed by a local key. The active chain can be
// switched, which the running flows observe as an identity change.
type KeyedWallet struct {
	mu      sync.RWMutex
	address common.Address
	chainID uint64
}

var _ smartcontract.Wallet = (*KeyedWallet)(nil)

func NewKeyedWallet(privKey *ecdsa.PrivateKey, chainID uint64) *KeyedWallet {
	return &KeyedWallet{address: crypto.PubkeyToAddress(privKey.PublicKey), chainID: chainID}
}

// InitWallet loads the configured key and checks it against the configured
// account address, if any.
func InitWallet(settingsObj *settings.SettingsObj) (*KeyedWallet, *ecdsa.PrivateKey, error) {
	privKey, err := GetPrivateKey(settingsObj.Signer.PrivateKey)
	if err != nil {
		return nil, nil, err
	}

	wallet := NewKeyedWallet(privKey, settingsObj.HomeChainID)

	if configured := settingsObj.Signer.AccountAddress; configured != "" && common.HexToAddress(configured) != wallet.address {
		return nil, nil, fmt.Errorf("private key belongs to %s, not the configured account %s", wallet.address.Hex(), configured)
	}

	return wallet, privKey, nil
}

func (w *KeyedWallet) Identity(context.Context) (datamodel.Identity, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return datamodel.Identity{Address: w.address, ChainID: w.chainID}, nil
}

func (w *KeyedWallet) SwitchChain(chainID uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.chainID != chainID {
		log.WithField("from", w.chainID).WithField("to", chainID).Info("wallet switched chain")
	}

	w.chainID = chainID
}
