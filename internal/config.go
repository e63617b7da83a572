package internal

import (
	"fmt"
	"time"

	"estimo/runtime"
)

type Config struct {
	Host           string        `env:"HOST,default=0.0.0.0"`
	GRPCPort       int           `env:"GRPC_PORT,default=9090"`
	HTTPPort       int           `env:"HTTP_PORT,default=8080"`
	DebugPort      int           `env:"DEBUG_PORT,default=6060"`
	GinMode        string        `env:"GIN_MODE,default=release"`
	BadgerFilepath string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string        `env:"LOG_LEVEL,default=INFO"`
	CommitBuffer   int           `env:"COMMIT_BUFFER_SIZE,default=1024"`
	ListenerBuffer int           `env:"LISTENER_BUFFER_SIZE,default=64"`
	SinkTimeout    time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartDelay   time.Duration `env:"RESTART_INTERVAL,default=500ms"`
	HeartbeatEvery time.Duration `env:"HEARTBEAT_INTERVAL,default=5s"`

	VoteAttempts      int           `env:"VOTE_MAX_ATTEMPTS,default=3"`
	VoteBaseDelay     time.Duration `env:"VOTE_BASE_DELAY,default=500ms"`
	VoteDelayStep     time.Duration `env:"VOTE_DELAY_INCREMENT,default=200ms"`
	JoinAttempts      int           `env:"JOIN_MAX_ATTEMPTS,default=3"`
	JoinBaseDelay     time.Duration `env:"JOIN_BASE_DELAY,default=1s"`
	JoinDelayStep     time.Duration `env:"JOIN_DELAY_INCREMENT,default=500ms"`
	JoinAttemptTimeout time.Duration `env:"JOIN_ATTEMPT_TIMEOUT,default=10s"`
	VoteInterval      time.Duration `env:"VOTE_INTERVAL,default=500ms"`
}

func (c Config) GRPCAddr() string  { return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort) }
func (c Config) HTTPAddr() string  { return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort) }
func (c Config) DebugAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.DebugPort) }

func (c Config) VotePolicy() runtime.RetryPolicy {
	return runtime.RetryPolicy{MaxAttempts: c.VoteAttempts, Base: c.VoteBaseDelay, Increment: c.VoteDelayStep}
}

func (c Config) JoinPolicy() runtime.RetryPolicy {
	return runtime.RetryPolicy{MaxAttempts: c.JoinAttempts, Base: c.JoinBaseDelay, Increment: c.JoinDelayStep}
}

// SessionPolicy keeps the default stagger and retry windows and applies the
// configured attempt deadline and vote interval.
func (c Config) SessionPolicy() runtime.SessionPolicy {
	policy := runtime.DefaultSessionPolicy
	policy.AttemptTimeout = c.JoinAttemptTimeout
	policy.VoteInterval = c.VoteInterval
	return policy
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.CommitBuffer <= 0:
		return fmt.Errorf("COMMIT_BUFFER_SIZE must be positive, got %d", c.CommitBuffer)
	case c.ListenerBuffer <= 0:
		return fmt.Errorf("LISTENER_BUFFER_SIZE must be positive, got %d", c.ListenerBuffer)
	case c.VoteAttempts <= 0 || c.JoinAttempts <= 0:
		return fmt.Errorf("retry attempts must be positive, got vote=%d join=%d", c.VoteAttempts, c.JoinAttempts)
	}
	return nil
}
