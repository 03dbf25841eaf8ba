package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"github.com/swagftw/gi"

	"sova-txcore/approval"
	"sova-txcore/bridge"
	"sova-txcore/caching"
	"sova-txcore/chainstate"
	"sova-txcore/decimals"
	"sova-txcore/goutils/ethclient"
	"sova-txcore/goutils/health"
	"sova-txcore/goutils/httpclient"
	"sova-txcore/goutils/logger"
	"sova-txcore/goutils/redisutils"
	"sova-txcore/goutils/reporting"
	"sova-txcore/goutils/settings"
	"sova-txcore/goutils/signer"
	"sova-txcore/goutils/smartcontract/transactions"
	"sova-txcore/orchestrator"
	"sova-txcore/refresh"
	"sova-txcore/txcore/api"
	"sova-txcore/txcore/service"
)

func main() {
	logger.InitLogger()

	settingsObj := settings.ParseSettings()

	wallet, privKey, err := signer.InitWallet(settingsObj)
	if err != nil {
		log.WithError(err).Fatal("failed to load signer")
	}

	if err = gi.Inject(wallet); err != nil {
		log.WithError(err).Fatal("failed to inject wallet")
	}

	clients := make(map[uint64]ethclient.Service, len(settingsObj.Chains))
	checks := make(map[string]health.Check, len(settingsObj.Chains)+1)

	for _, chain := range settingsObj.Chains {
		client, err := ethclient.NewClient(chain.RPCURL, settingsObj.HttpClient)
		if err != nil {
			log.WithError(err).WithField("chain", chain.ChainID).Fatal("failed to init eth client")
		}

		clients[chain.ChainID] = client
		checks[fmt.Sprintf("rpc:%d", chain.ChainID)] = func(ctx context.Context) error {
			_, err := client.BlockNumber(ctx)

			return err
		}
	}

	txManager := transactions.NewTxManager(clients, privKey)

	cache, redisClient, err := initCache(settingsObj)
	if err != nil {
		log.WithError(err).Fatal("failed to init read cache")
	}

	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisutils.Ping(ctx, redisClient)
		}
	}

	state := chainstate.NewState(txManager, cache)
	if err = gi.Inject(state); err != nil {
		log.WithError(err).Fatal("failed to inject chain state")
	}

	gate, err := approval.NewGate(settingsObj.Approval.Policy, txManager, txManager)
	if err != nil {
		log.WithError(err).Fatal("invalid approval policy")
	}

	reporter := reporting.InitIssueReporter(settingsObj)

	scheduler := refresh.NewScheduler(refresh.Intervals(settingsObj.Refresh), settingsObj.Refresh.Concurrency, refresh.DefaultDebounce)

	flows := orchestrator.NewOrchestrator(settingsObj.InstanceId, wallet, txManager, txManager, state, gate, scheduler, reporter)
	if err = gi.Inject(flows); err != nil {
		log.WithError(err).Fatal("failed to inject orchestrator")
	}

	// sovaBTC moves with canonical precision on every chain
	bridgeService, err := bridge.NewService(settingsObj, txManager, state, decimals.CanonicalDecimals)
	if err != nil {
		log.WithError(err).Fatal("invalid bridge settings")
	}

	if err = gi.Inject(bridgeService); err != nil {
		log.WithError(err).Fatal("failed to inject bridge service")
	}

	txService := service.InitTxCoreService()
	txService.Subscribe(scheduler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if redisClient == nil {
			return
		}

		if err := redisClient.Close(); err != nil {
			log.WithError(err).Error("error while closing redis client")
		}
	}()

	httpclient.StartDNSRefresh(ctx)

	go scheduler.Run(ctx)

	if identity, err := wallet.Identity(ctx); err == nil {
		scheduler.Refresh(txService.InitialKeys(identity)...)
	}

	server := api.NewServer(txService, settingsObj.API.HealthEndpoint, checks)

	if err = server.ListenAndServe(ctx, settingsObj.API.Port); err != nil {
		log.WithError(err).Error("api server stopped")
	}
}

// initCache returns the redis client too when the redis backend is selected.
func initCache(settingsObj *settings.SettingsObj) (caching.ReadCache, *redis.Client, error) {
	staleness := time.Duration(settingsObj.Cache.StalenessSeconds) * time.Second

	if settingsObj.Cache.Backend != "redis" {
		memory, err := caching.NewMemoryCache(settingsObj.Cache.Size, staleness)
		if err != nil {
			return nil, nil, err
		}

		return memory, nil, nil
	}

	client, err := redisutils.InitRedisClient(settingsObj.Redis)
	if err != nil {
		return nil, nil, err
	}

	return caching.NewRedisCache(client, staleness), client, nil
}
