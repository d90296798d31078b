package stream

import (
	"time"

	"github.com/mohammed-shakir/raster-intake/internal/core/config"
)

type Config struct {
	Brokers         []string
	Topic           string
	GroupID         string
	ClientID        string
	DeadLetterTopic string

	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool

	MaxInflight int
	// RetryDelay is the pause before a Retry outcome ends the session.
	RetryDelay time.Duration
}

// ConfigFrom builds a runner config for topic from the process configuration.
func ConfigFrom(k config.KafkaCfg, topic string, maxInflight int) Config {
	return Config{
		Brokers:          k.Brokers,
		Topic:            topic,
		GroupID:          k.GroupID,
		ClientID:         k.ClientID,
		DeadLetterTopic:  k.DeadLetterTopic,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		InitialOldest:    true,
		MaxInflight:      maxInflight,
		RetryDelay:       2 * time.Second,
	}
}
