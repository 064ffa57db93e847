package lbp

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/scylladb/dc-aware-lbp-golang/logx"
	"github.com/scylladb/dc-aware-lbp-golang/logxzap"
	"github.com/scylladb/dc-aware-lbp-golang/metadata"
	"github.com/scylladb/dc-aware-lbp-golang/metrics"
	"github.com/scylladb/dc-aware-lbp-golang/rt"
)

const (
	defaultSessionName = "s0"
	defaultProfileName = "default"
)

// Config configures a Policy
type Config struct {
	// MaxNodesPerRemoteDC is how many nodes of each remote datacenter are kept as REMOTE,
	// zero or less disables remote failover
	MaxNodesPerRemoteDC int
	// LocalDCResolver discovers the local datacenter at initialization
	LocalDCResolver LocalDCResolver
	// DistanceEvaluatorFactory creates the distance evaluator at initialization
	DistanceEvaluatorFactory DistanceEvaluatorFactory
	// PlanBuilder turns live local nodes into query plans
	PlanBuilder PlanBuilder
	Logger      logx.Logger
	// Metrics, optional
	Metrics     *metrics.Collector
	SessionName string
	ProfileName string
}

// Option a configuration option
type Option func(config *Config)

// NewDefaultConfig creates a datacenter-agnostic configuration with remote failover disabled
func NewDefaultConfig() Config {
	return Config{
		LocalDCResolver:          rt.NewResolver(rt.NewClusterScope()),
		DistanceEvaluatorFactory: noopEvaluatorFactory,
		PlanBuilder:              SingleCandidatePlanBuilder{},
		Logger:                   logxzap.DefaultLogger(),
		SessionName:              defaultSessionName,
		ProfileName:              defaultProfileName,
	}
}

func noopEvaluatorFactory(string, map[string]metadata.Node) DistanceEvaluator {
	return NoopDistanceEvaluator{}
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var err error
	if c.LocalDCResolver == nil {
		err = multierr.Append(err, errors.New("lbp config: LocalDCResolver must be provided"))
	}
	if c.DistanceEvaluatorFactory == nil {
		err = multierr.Append(err, errors.New("lbp config: DistanceEvaluatorFactory must be provided"))
	}
	if c.PlanBuilder == nil {
		err = multierr.Append(err, errors.New("lbp config: PlanBuilder must be provided"))
	}
	if c.Logger == nil {
		err = multierr.Append(err, errors.New("lbp config: Logger must be provided"))
	}
	if c.ProfileName == "" {
		err = multierr.Append(err, fmt.Errorf("lbp config: ProfileName cannot be empty (session %q)", c.SessionName))
	}
	return err
}

// LogPrefix identifies the policy in log messages
func (c *Config) LogPrefix() string {
	return c.SessionName + "|" + c.ProfileName
}

// WithMaxNodesPerRemoteDC sets how many nodes per remote datacenter may be used for failover
func WithMaxNodesPerRemoteDC(value int) Option {
	return func(config *Config) {
		config.MaxNodesPerRemoteDC = value
	}
}

// WithLocalDCResolver sets the local datacenter discovery
func WithLocalDCResolver(resolver LocalDCResolver) Option {
	if resolver == nil {
		panic("resolver can't be nil")
	}
	return func(config *Config) {
		config.LocalDCResolver = resolver
	}
}

// WithRoutingScope discovers the local datacenter by walking the scope chain
func WithRoutingScope(scope rt.Scope) Option {
	return WithLocalDCResolver(rt.NewResolver(scope))
}

// WithLocalDatacenter configures the local datacenter statically
func WithLocalDatacenter(dc string) Option {
	if dc == "" {
		panic("datacenter can't be empty")
	}
	return WithLocalDCResolver(rt.NewResolver(rt.NewDCScope(dc, nil)))
}

// WithDistanceEvaluator plugs a distance override
func WithDistanceEvaluator(evaluator DistanceEvaluator) Option {
	if evaluator == nil {
		panic("evaluator can't be nil")
	}
	return WithDistanceEvaluatorFactory(func(string, map[string]metadata.Node) DistanceEvaluator {
		return evaluator
	})
}

// WithDistanceEvaluatorFactory plugs a distance override that depends on the local datacenter
// or on the initial topology
func WithDistanceEvaluatorFactory(factory DistanceEvaluatorFactory) Option {
	if factory == nil {
		panic("factory can't be nil")
	}
	return func(config *Config) {
		config.DistanceEvaluatorFactory = factory
	}
}

// WithPlanBuilder replaces the query plan construction
func WithPlanBuilder(builder PlanBuilder) Option {
	if builder == nil {
		panic("builder can't be nil")
	}
	return func(config *Config) {
		config.PlanBuilder = builder
	}
}

// WithLogger sets logger
func WithLogger(logger logx.Logger) Option {
	return func(config *Config) {
		config.Logger = logger
	}
}

// WithMetrics makes the policy record its activity
func WithMetrics(collector *metrics.Collector) Option {
	return func(config *Config) {
		config.Metrics = collector
	}
}

// WithSessionName sets the session name used in log messages
func WithSessionName(name string) Option {
	return func(config *Config) {
		config.SessionName = name
	}
}

// WithProfileName sets the execution profile name used in log messages
func WithProfileName(name string) Option {
	return func(config *Config) {
		config.ProfileName = name
	}
}
