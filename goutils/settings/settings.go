package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"github.com/swagftw/gi"
)

// lower bounds for refresh intervals, to avoid RPC request storms
const (
	MinBalanceRefreshSeconds = 5
	MinFastRefreshSeconds    = 1
)

type (
	Chain struct {
		ChainID    uint64 `json:"chain_id" validate:"required"`
		Name       string `json:"name"`
		RPCURL     string `json:"rpc_url" validate:"required"`
		EndpointID uint32 `json:"endpoint_id"`
		OFTAddress string `json:"oft_address"`
		// OFTRequiresApproval is set when the chain's OFT is an adapter that pulls
		// the underlying token and so needs an allowance before send.
		OFTRequiresApproval bool `json:"oft_requires_approval"`
	}

	Contracts struct {
		Wrapper         string `json:"wrapper" validate:"required"`
		Staking         string `json:"staking" validate:"required"`
		RedemptionQueue string `json:"redemption_queue" validate:"required"`
		SovaBTC         string `json:"sova_btc" validate:"required"`
	}

	Token struct {
		Address  string `json:"address" validate:"required"`
		Symbol   string `json:"symbol" validate:"required"`
		Decimals int    `json:"decimals" validate:"min=0,max=18"`
		Icon     string `json:"icon"`
	}

	Approval struct {
		Policy string `json:"policy" validate:"required,oneof=exact max"`
	}

	Bridge struct {
		QuoteTTLSeconds     int    `json:"quote_ttl_seconds"`
		SlippageBps         uint32 `json:"slippage_bps" validate:"max=10000"`
		DestinationGasLimit uint64 `json:"destination_gas_limit"`
		NativeDropWei       string `json:"native_drop_wei"`
	}

	Refresh struct {
		BalanceIntervalSeconds   int `json:"balance_interval_seconds"`
		AllowanceIntervalSeconds int `json:"allowance_interval_seconds"`
		QueueIntervalSeconds     int `json:"queue_interval_seconds"`
		StakingIntervalSeconds   int `json:"staking_interval_seconds"`
		Concurrency              int `json:"concurrency"`
	}

	Cache struct {
		Backend          string `json:"backend" validate:"omitempty,oneof=memory redis"`
		StalenessSeconds int    `json:"staleness_seconds"`
		Size             int    `json:"size"`
	}

	Redis struct {
		Host     string `json:"host"`
		Port     int    `json:"port"`
		Db       int    `json:"db"`
		Password string `json:"password"`
		PoolSize int    `json:"pool_size"`
	}

	HTTPClient struct {
		MaxIdleConns        int `json:"max_idle_conns"`
		MaxConnsPerHost     int `json:"max_conns_per_host"`
		MaxIdleConnsPerHost int `json:"max_idle_conns_per_host"`
		IdleConnTimeout     int `json:"idle_conn_timeout"`
		ConnectionTimeout   int `json:"connection_timeout"`
		RetryMax            int `json:"retry_max"`
	}

	Signer struct {
		AccountAddress string `json:"accountAddress"`
		PrivateKey     string `json:"privateKey"`
	}

	Reporting struct {
		SlackWebhookURL   string `json:"slack_webhook_url"`
		FlowIssueEndpoint string `json:"flow_issue_endpoint"`
		RequestsPerSecond int    `json:"requests_per_second"`
	}

	API struct {
		Port           int    `json:"port"`
		HealthEndpoint string `json:"health_endpoint"`
	}
)

type SettingsObj struct {
	InstanceId  string      `json:"instance_id" validate:"required"`
	HomeChainID uint64      `json:"home_chain_id" validate:"required"`
	Chains      []*Chain    `json:"chains" validate:"required,min=1,dive"`
	Contracts   *Contracts  `json:"contracts" validate:"required"`
	Tokens      []*Token    `json:"tokens" validate:"required,min=1,dive"`
	RewardToken *Token      `json:"reward_token" validate:"required"`
	Approval    *Approval   `json:"approval" validate:"required"`
	Bridge      *Bridge     `json:"bridge" validate:"required"`
	Refresh     *Refresh    `json:"refresh" validate:"required"`
	Cache       *Cache      `json:"cache" validate:"required"`
	Redis       *Redis      `json:"redis"`
	HttpClient  *HTTPClient `json:"http_client" validate:"required"`
	Signer      *Signer     `json:"signer" validate:"required"`
	Reporting   *Reporting  `json:"reporting" validate:"required"`
	API         *API        `json:"api" validate:"required"`
}

// Chain returns the configured chain with chainID, or nil.
func (s *SettingsObj) Chain(chainID uint64) *Chain {
	for _, c := range s.Chains {
		if c.ChainID == chainID {
			return c
		}
	}

	return nil
}

// ParseSettings parses $CONFIG_PATH/settings.json, validates it and registers it
// in the injection container.
func ParseSettings() *SettingsObj {
	dir := strings.TrimSuffix(os.Getenv("CONFIG_PATH"), "/")
	settingsFilePath := dir + "/settings.json"

	log.Info("reading settings:", settingsFilePath)

	settingsObj, err := ParseSettingsFile(settingsFilePath)
	if err != nil {
		log.WithError(err).Fatal("invalid settings object")
	}

	log.Infof("final Settings Object being used %+v", settingsObj)

	err = gi.Inject(settingsObj)
	if err != nil {
		log.Fatal("cannot inject the settings object", err)
	}

	return settingsObj
}

// ParseSettingsFile reads, validates and defaults the settings at path.
func ParseSettingsFile(path string) (*SettingsObj, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read settings file: %w", err)
	}

	settingsObj := new(SettingsObj)

	if err = json.Unmarshal(data, settingsObj); err != nil {
		return nil, fmt.Errorf("cannot unmarshal settings json: %w", err)
	}

	if err = validator.New().Struct(settingsObj); err != nil {
		return nil, err
	}

	SetDefaults(settingsObj)

	if settingsObj.Chain(settingsObj.HomeChainID) == nil {
		return nil, fmt.Errorf("home chain %d is not in the chains list", settingsObj.HomeChainID)
	}

	if settingsObj.Cache.Backend == "redis" && settingsObj.Redis == nil {
		return nil, fmt.Errorf("redis cache backend selected but redis is not configured")
	}

	return settingsObj, nil
}

// SetDefaults sets the default values for the settings object
// add default values in this function if required
func SetDefaults(settingsObj *SettingsObj) {
	if settingsObj.Reporting.SlackWebhookURL == "" {
		log.Warning("slack webhook url is not set, failed flows will not be reported to slack")
	}

	if settingsObj.Reporting.RequestsPerSecond <= 0 {
		settingsObj.Reporting.RequestsPerSecond = 1
	}

	// for local testing
	if val, err := strconv.ParseBool(os.Getenv("LOCAL_TESTING")); err == nil && val && settingsObj.Redis != nil {
		settingsObj.Redis.Host = "localhost"
	}

	privKey := os.Getenv("PRIVATE_KEY")
	if privKey != "" {
		settingsObj.Signer.PrivateKey = privKey
	}

	if settingsObj.Bridge.QuoteTTLSeconds <= 0 {
		settingsObj.Bridge.QuoteTTLSeconds = 30
	}

	if settingsObj.Bridge.DestinationGasLimit == 0 {
		settingsObj.Bridge.DestinationGasLimit = 200000
	}

	r := settingsObj.Refresh
	r.BalanceIntervalSeconds = atLeast(r.BalanceIntervalSeconds, 10, MinBalanceRefreshSeconds)
	r.AllowanceIntervalSeconds = atLeast(r.AllowanceIntervalSeconds, 10, MinBalanceRefreshSeconds)
	r.QueueIntervalSeconds = atLeast(r.QueueIntervalSeconds, 2, MinFastRefreshSeconds)
	r.StakingIntervalSeconds = atLeast(r.StakingIntervalSeconds, 2, MinFastRefreshSeconds)

	if r.Concurrency <= 0 {
		r.Concurrency = 4
	}

	if settingsObj.Cache.Backend == "" {
		settingsObj.Cache.Backend = "memory"
	}

	if settingsObj.Cache.StalenessSeconds <= 0 {
		settingsObj.Cache.StalenessSeconds = 10
	}

	if settingsObj.Cache.Size <= 0 {
		settingsObj.Cache.Size = 1024
	}

	if settingsObj.API.HealthEndpoint == "" {
		settingsObj.API.HealthEndpoint = "/health"
	}

	if settingsObj.API.Port == 0 {
		settingsObj.API.Port = 9000
	}
}

func atLeast(v, def, min int) int {
	if v == 0 {
		v = def
	}

	if v < min {
		log.WithField("interval", v).Warnf("refresh interval below %ds, clamping", min)

		return min
	}

	return v
}
