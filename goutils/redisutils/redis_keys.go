package redisutils

const (
	// chainID:kind:token:owner:spender
	REDIS_KEY_CHAIN_READ string = "txcore:chain:%d:%s:%s:%s:%s"
)
