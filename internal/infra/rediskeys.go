package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "xrouter"
)

// Ключи состояния
const (
	RedisKeyTrustedAdapters     = RedisNamespace + ":registry:trust"     // HASH chain_id -> target
	RedisKeyAuthorizedExecutors = RedisNamespace + ":registry:executors" // HASH address -> "true"
	RedisKeyLockWarmupTrust     = RedisNamespace + ":lock:warmup:trust"
	RedisKeyLockWarmupExecutors = RedisNamespace + ":lock:warmup:executors"
	RedisKeyExecutedPrefix      = RedisNamespace + ":executed:"
	RedisKeyConditionPrefix     = RedisNamespace + ":conditions:"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanTrust: "chain_id:target", нулевой адрес снимает ограничение.
	RedisChanTrust = RedisNamespace + ":registry:trust-signal"
	// RedisChanAuthorization: "address:true|false".
	RedisChanAuthorization = RedisNamespace + ":registry:executor-signal"
)

// ExecutedKey ключ записи об исполненном действии.
func ExecutedKey(actionID string) string {
	return RedisKeyExecutedPrefix + actionID
}

// ConditionKey ключ аттестации условия.
func ConditionKey(condition string) string {
	return fmt.Sprintf("%s%s", RedisKeyConditionPrefix, condition)
}
