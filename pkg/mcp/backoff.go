package mcp

import (
	"math"
	"time"

	"github.com/flowforge/agentcore/pkg/config"
)

// nextInterval computes the reconnect backoff for a server that has
// failed attemptCount times in a row:
//
//	min(base * multiplier^(attemptCount-1), maxInterval)
//
// per spec §4.A "Failure tracking". attemptCount <= 0 returns base.
func nextInterval(cfg config.ReconnectConfig, attemptCount int) time.Duration {
	if attemptCount <= 1 {
		return cfg.BaseInterval
	}
	scaled := float64(cfg.BaseInterval) * math.Pow(cfg.Multiplier, float64(attemptCount-1))
	if scaled > float64(cfg.MaxInterval) {
		return cfg.MaxInterval
	}
	return time.Duration(scaled)
}

// dueForReconnect reports whether enough time has elapsed since the last
// attempt for a reconnect to be attempted now.
func dueForReconnect(cfg config.ReconnectConfig, info FailureInfo, now time.Time) bool {
	if info.AttemptCount == 0 {
		return true
	}
	wait := nextInterval(cfg, info.AttemptCount)
	return now.Sub(info.LastAttempt) >= wait
}
