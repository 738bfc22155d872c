package resilience

import (
	"time"

	"go.uber.org/zap"
)

// FromRetryConfig builds a RetryConfig from configuration values, keeping
// defaults for zero values and logging retries under service.
func FromRetryConfig(service string, maxAttempts, initialBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	cfg.OnRetry = RetryLogger(service, "request")
	return cfg
}

// FromCircuitConfig builds a CircuitBreakerConfig from configuration values
// and logs every state change of the breaker guarding service.
func FromCircuitConfig(service string, failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	cfg.OnStateChange = func(from, to CircuitState) {
		zap.L().Warn("circuit breaker state change",
			zap.String("service", service),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return cfg
}
