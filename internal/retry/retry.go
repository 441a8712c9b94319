// Package retry implements the error-classified retry manager
// supplemented into §4.2: classify the error that caused a transition to
// fail, look up per-class retry parameters, and track statistics.
package retry

import (
	"math"
	"sync"
	"time"

	"github.com/falconmind/clustercenter/pkg/errs"
)

// ErrorClass is the bucket an error falls into for retry purposes.
type ErrorClass string

const (
	ClassNetwork    ErrorClass = "NETWORK"
	ClassTimeout    ErrorClass = "TIMEOUT"
	ClassServer     ErrorClass = "SERVER"
	ClassClient     ErrorClass = "CLIENT"
	ClassRateLimit  ErrorClass = "RATE_LIMIT"
	ClassAuth       ErrorClass = "AUTH"
	ClassValidation ErrorClass = "VALIDATION"
	ClassUnknown    ErrorClass = "UNKNOWN"
)

// Policy is the per-class retry parameter tuple.
type Policy struct {
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	ShouldRetry       bool
}

const rateLimitFloor = 5 * time.Second

var defaultPolicies = map[ErrorClass]Policy{
	ClassNetwork:    {MaxRetries: 5, InitialDelay: 500 * time.Millisecond, BackoffMultiplier: 2.0, ShouldRetry: true},
	ClassTimeout:    {MaxRetries: 3, InitialDelay: 1 * time.Second, BackoffMultiplier: 2.0, ShouldRetry: true},
	ClassServer:     {MaxRetries: 4, InitialDelay: 1 * time.Second, BackoffMultiplier: 2.0, ShouldRetry: true},
	ClassClient:     {MaxRetries: 1, InitialDelay: 500 * time.Millisecond, BackoffMultiplier: 1.5, ShouldRetry: true},
	ClassRateLimit:  {MaxRetries: 5, InitialDelay: rateLimitFloor, BackoffMultiplier: 2.0, ShouldRetry: true},
	ClassAuth:       {MaxRetries: 0, ShouldRetry: false},
	ClassValidation: {MaxRetries: 0, ShouldRetry: false},
	ClassUnknown:    {MaxRetries: 2, InitialDelay: 1 * time.Second, BackoffMultiplier: 2.0, ShouldRetry: true},
}

// ClassifyErr maps a pkg/errs.Kind onto a retry ErrorClass. Errors not
// produced through pkg/errs classify as UNKNOWN.
func ClassifyErr(err error) ErrorClass {
	switch errs.KindOf(err) {
	case errs.Validation:
		return ClassValidation
	case errs.Transient:
		return ClassNetwork
	case errs.CapacityExhausted:
		return ClassRateLimit
	case errs.InvalidState:
		return ClassClient
	case errs.Fatal:
		return ClassServer
	default:
		return ClassUnknown
	}
}

type classStats struct {
	Seen              int
	Retried           int
	SucceededAfterRetry int
}

// Manager tracks retry policy and per-class statistics, mirroring
// error_stats/get_error_statistics from the original source as an
// exported method rather than a bare map.
type Manager struct {
	mu       sync.Mutex
	policies map[ErrorClass]Policy
	stats    map[ErrorClass]*classStats
	// overrides keyed by mission type, applied over the class policy
	// (e.g. TRANSPORT gets fewer retries than INSPECTION).
	typeOverrides map[string]map[ErrorClass]Policy
}

// NewManager creates a retry Manager with the default class policies.
func NewManager() *Manager {
	return &Manager{
		policies:      defaultPolicies,
		stats:         make(map[ErrorClass]*classStats),
		typeOverrides: make(map[string]map[ErrorClass]Policy),
	}
}

// SetOverride installs a mission-type-specific override for a class.
func (m *Manager) SetOverride(missionType string, class ErrorClass, policy Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.typeOverrides[missionType] == nil {
		m.typeOverrides[missionType] = make(map[ErrorClass]Policy)
	}
	m.typeOverrides[missionType][class] = policy
}

func (m *Manager) policyFor(missionType string, class ErrorClass) Policy {
	if overrides, ok := m.typeOverrides[missionType]; ok {
		if p, ok := overrides[class]; ok {
			return p
		}
	}
	if p, ok := m.policies[class]; ok {
		return p
	}
	return defaultPolicies[ClassUnknown]
}

// Decision is what the caller should do about a failed attempt.
type Decision struct {
	ShouldRetry bool
	Delay       time.Duration
}

// Next records a failed attempt (attemptNumber is 1-based, the attempt
// that just failed) and returns whether/when to retry.
func (m *Manager) Next(err error, missionType string, attemptNumber int) Decision {
	class := ClassifyErr(err)

	m.mu.Lock()
	if m.stats[class] == nil {
		m.stats[class] = &classStats{}
	}
	m.stats[class].Seen++
	policy := m.policyFor(missionType, class)
	m.mu.Unlock()

	if !policy.ShouldRetry || attemptNumber > policy.MaxRetries {
		return Decision{ShouldRetry: false}
	}

	delay := time.Duration(float64(policy.InitialDelay) * math.Pow(policy.BackoffMultiplier, float64(attemptNumber-1)))
	if class == ClassRateLimit && delay < rateLimitFloor {
		delay = rateLimitFloor
	}

	m.mu.Lock()
	m.stats[class].Retried++
	m.mu.Unlock()

	return Decision{ShouldRetry: true, Delay: delay}
}

// RecordSuccessAfterRetry should be called when a retried operation
// eventually succeeds, to keep the statistics accurate.
func (m *Manager) RecordSuccessAfterRetry(err error) {
	class := ClassifyErr(err)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats[class] == nil {
		m.stats[class] = &classStats{}
	}
	m.stats[class].SucceededAfterRetry++
}

// Statistics is the exported, operator-facing snapshot of retry counters
// per error class (served at /api/v1/admin/retry-stats).
type Statistics struct {
	Class               string `json:"class"`
	Seen                int    `json:"seen"`
	Retried             int    `json:"retried"`
	SucceededAfterRetry int    `json:"succeeded_after_retry"`
}

// RetryStatistics returns a snapshot of per-class retry counters.
func (m *Manager) RetryStatistics() []Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Statistics, 0, len(m.stats))
	for class, s := range m.stats {
		out = append(out, Statistics{
			Class:               string(class),
			Seen:                s.Seen,
			Retried:             s.Retried,
			SucceededAfterRetry: s.SucceededAfterRetry,
		})
	}
	return out
}
