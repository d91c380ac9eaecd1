package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "policyweb"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanSubscriptionUpdate: payload: user_id, чью подписку нужно перечитать.
	RedisChanSubscriptionUpdate = RedisNamespace + ":subscriptions:update"
	// RedisChanPolicyEvents: payload: "<action>:<user_id>:<policy_id>".
	RedisChanPolicyEvents = RedisNamespace + ":policies:events"
)

// PolicyListKey: ключ кэша списка политик пользователя.
func PolicyListKey(userID string) string {
	return fmt.Sprintf("%s:policies:user:%s", RedisNamespace, userID)
}

// Стоп-кран генерации по типам политик
const (
	// RedisKeySuspendedTypes: SET приостановленных типов, источник правды.
	RedisKeySuspendedTypes = RedisNamespace + ":generation:suspended_set"
	// RedisKeySuspendedSeeded: маркер без TTL, конфиг уже залит в SET.
	RedisKeySuspendedSeeded = RedisNamespace + ":generation:seeded"
	// RedisChanKillSwitch: payload: "suspend:<type>" или "resume:<type>".
	RedisChanKillSwitch = RedisNamespace + ":generation:kill-switch"
)
