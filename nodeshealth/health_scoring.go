// Package nodeshealth turns connection errors into node reachability changes.
//
// Every error reported for a node adds a weight to its score; once the score
// crosses a cut-off the node is marked DOWN and the listener (usually the load
// balancing policy) is notified. DOWN nodes are probed periodically and come
// back UP when a probe succeeds.
package nodeshealth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// ErrorWeightFunc maps a connection error to the score it adds.
type ErrorWeightFunc func(err error) uint64

// ErrorWeights holds the penalties applied for different error classes.
type ErrorWeights struct {
	ContextCancelled     uint64
	ContextTimeout       uint64
	Default              uint64
	Timeout              uint64
	NetConnectionRefused uint64
	NetConnectionReset   uint64
	TLSCritical          uint64
	NotFound             uint64
	DNSDefault           uint64
	NetDefault           uint64
}

// HealthScoring configures how scores are accumulated.
type HealthScoring struct {
	ErrorWeightFunc ErrorWeightFunc
	// DownScoreCutOff marks the node DOWN once its score reaches it
	DownScoreCutOff uint64
	// UpScore is the score a node starts with after coming back UP
	UpScore uint64
	// ResetInterval clears the score when no error was reported for that long
	ResetInterval time.Duration
}

// Validate ensures scoring parameters are correctly defined.
func (hs HealthScoring) Validate() error {
	if hs.ErrorWeightFunc == nil {
		return errors.New("node health scoring: ErrorWeightFunc must be provided")
	}
	if hs.DownScoreCutOff == 0 {
		return errors.New("node health scoring: DownScoreCutOff must be > 0")
	}
	if hs.UpScore >= hs.DownScoreCutOff {
		return fmt.Errorf("node health scoring: UpScore (%d) must be below DownScoreCutOff (%d)", hs.UpScore, hs.DownScoreCutOff)
	}
	if hs.ResetInterval <= 0 {
		return fmt.Errorf("node health scoring: ResetInterval must be > 0 (got %s)", hs.ResetInterval)
	}
	return nil
}

// applyError adds the weight of err to the status, returns true if the node just went DOWN.
func (hs HealthScoring) applyError(status *NodeHealthStatus, err error, now time.Time) bool {
	if status.down {
		return false
	}
	if status.updated.IsZero() || now.Sub(status.updated) >= hs.ResetInterval {
		status.score = 0
	}
	delta := hs.ErrorWeightFunc(err)
	if delta == 0 {
		return false
	}
	status.updated = now
	status.score += delta
	if status.score >= hs.DownScoreCutOff {
		status.down = true
		return true
	}
	return false
}

// markUp brings the node back UP, returns false if it was not DOWN.
func (hs HealthScoring) markUp(status *NodeHealthStatus, now time.Time) bool {
	if !status.down {
		return false
	}
	status.down = false
	status.updated = now
	status.score = hs.UpScore
	return true
}

// markDown forces the node DOWN, returns false if it already was.
func (hs HealthScoring) markDown(status *NodeHealthStatus, now time.Time) bool {
	if status.down {
		return false
	}
	status.down = true
	status.updated = now
	return true
}

// ErrorWeightsFunc returns an ErrorWeightFunc classifying errors with the given weights.
func ErrorWeightsFunc(weights ErrorWeights) ErrorWeightFunc {
	return func(err error) uint64 {
		if err == nil {
			return 0
		}

		switch {
		case errors.Is(err, context.Canceled):
			return weights.ContextCancelled
		case errors.Is(err, context.DeadlineExceeded):
			return weights.ContextTimeout
		case errors.Is(err, syscall.ECONNREFUSED):
			return weights.NetConnectionRefused
		case errors.Is(err, syscall.ECONNRESET):
			return weights.NetConnectionReset
		}

		var tlsCertErr *tls.CertificateVerificationError
		if errors.As(err, &tlsCertErr) {
			return weights.TLSCritical
		}

		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			if dnsErr.IsTimeout {
				return weights.Timeout
			}
			if dnsErr.IsNotFound {
				return weights.NotFound
			}
			return weights.DNSDefault
		}

		var netErr net.Error
		if errors.As(err, &netErr) {
			if netErr.Timeout() {
				return weights.Timeout
			}
			return weights.NetDefault
		}

		return weights.Default
	}
}

// DefaultErrorWeights defines penalties used by DefaultErrorWeightFunc.
var DefaultErrorWeights = ErrorWeights{
	Default:              1,
	Timeout:              40,
	NetConnectionRefused: 124,
	NetConnectionReset:   20,
	TLSCritical:          124,
	ContextCancelled:     0,
	ContextTimeout:       0,
	NetDefault:           2,
	NotFound:             124,
	DNSDefault:           2,
}

// DefaultErrorWeightFunc classifies errors with DefaultErrorWeights.
var DefaultErrorWeightFunc = ErrorWeightsFunc(DefaultErrorWeights)

// DefaultHealthScoring marks a node DOWN after a refused connection, or after a few timeouts
// within ten seconds.
var DefaultHealthScoring = HealthScoring{
	ErrorWeightFunc: DefaultErrorWeightFunc,
	DownScoreCutOff: 124,
	ResetInterval:   10 * time.Second,
	UpScore:         60,
}
