// Package errs contains the errors returned by the load balancing policy and its helpers
package errs

import "errors"

var (
	// ErrNoLocalDatacenter is a configuration error: the deployment requires a local datacenter
	// and none could be resolved
	ErrNoLocalDatacenter = errors.New("local datacenter is required but could not be resolved")
	// ErrPolicyAlreadyInitialized signals that Init was called more than once on the same policy
	ErrPolicyAlreadyInitialized = errors.New("load balancing policy is already initialized")
	// ErrPolicyClosed signals that the policy was closed before Init
	ErrPolicyClosed = errors.New("load balancing policy is closed")
	// ErrQueryPlanExhausted signals that query plan has come to an end and has no more nodes in it
	ErrQueryPlanExhausted = errors.New("query plan has been exhausted")
	// ErrUnknownNode signals that a node is not tracked by the component it was reported to
	ErrUnknownNode = errors.New("node is not tracked")
)
