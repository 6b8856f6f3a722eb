package config

import "time"

type Config interface {
	SkipHAL() bool
	PollInterval() time.Duration
	ACPollInterval() time.Duration
	AllowNonRootAccess() bool
	Metrics() bool
	RedisAddr() string
	RedisKey() string
	MQTTBroker() string
	MQTTTopic() string

	SetSkipHAL(bool)
	SetPollInterval(time.Duration)
	SetACPollInterval(time.Duration)
	SetAllowNonRootAccess(bool)
	SetMetrics(bool)
	SetRedisAddr(string)
	SetRedisKey(string)
	SetMQTTBroker(string)
	SetMQTTTopic(string)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
