// core/gateway.go
package core

// The intent gateway is the public request surface: it validates a
// submission, walks the admission pipeline in a fixed order (control
// plane → rate limiter → idempotency → policy → resolver → executor),
// and publishes lifecycle events plus a metric for every stage. Requests
// are handled concurrently; the rate limiter and idempotency store are
// the only shared mutable state the pipeline touches, and both lock per
// key.

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	logrus "github.com/sirupsen/logrus"
)

// NameResolver resolves a scheme-prefixed logical name (anything that is
// not already raw CID text) to a byte-CID through an external naming
// service. It is optional; without one, only raw CID text is accepted.
type NameResolver interface {
	ResolveName(ctx context.Context, name string) (CID, error)
}

// Attestations are the opaque upstream-manifest attributes a request may
// carry for the policy engine: the gateway never interprets them, it
// only forwards them into the PolicyInput.
type Attestations struct {
	ResonanceHz    int
	Complexity     float64
	SignatureToken []byte
}

// RequestMetadata is the caller-supplied descriptive metadata.
type RequestMetadata struct {
	FunctionName string
	Version      string
	Tags         []string
}

// RequestPolicy caps the resources a single request may consume below
// the control plane's defaults, and names capabilities the sandbox must
// refuse even though they are registered.
type RequestPolicy struct {
	MaxMemoryBytes     uint64
	MaxGas             uint64
	MaxTimeoutMS       int
	DeniedCapabilities []string
}

// RequestOptions selects optional observability detail on the result.
type RequestOptions struct {
	ReturnLogs       bool
	ReturnGasProfile bool
	TraceExecution   bool
	TimeoutMS        int
}

// ExecutionRequest is the gateway's input record.
type ExecutionRequest struct {
	CID            string // raw CIDv0/v1 text, or a logical name for the NameResolver
	Caller         string
	Inputs         ExecInput
	Policy         *RequestPolicy
	IdempotencyKey string
	Metadata       RequestMetadata
	Attestations   Attestations
	Options        RequestOptions
}

// ExecutionResult is the terminal record produced exactly once per
// admitted request.
type ExecutionResult struct {
	RequestID    string      `json:"request_id"`
	Success      bool        `json:"success"`
	Output       any         `json:"output,omitempty"`
	Error        string      `json:"error,omitempty"`
	ErrorType    ErrorType   `json:"error_type,omitempty"`
	GasUsed      uint64      `json:"gas_used"`
	DurationMS   int64       `json:"duration_ms"`
	Logs         []string    `json:"logs,omitempty"`
	GasProfile   *GasProfile `json:"gas_profile,omitempty"`
	PolicyNotice string      `json:"policy_notice,omitempty"` // set when the policy decision was warn
	ExecutedAt   time.Time   `json:"executed_at"`
	ExecutorNode string      `json:"executor_node,omitempty"`
}

// RateLimitError carries the retry-after hint alongside the ErrRateLimited
// sentinel, so callers can surface it without parsing the message.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

var idempotencyKeyRe = regexp.MustCompile(`^[A-Za-z0-9_\-]{8,128}$`)

// Gateway wires the admission pipeline together. All fields except Names
// are required; a nil Names restricts requests to raw CID text.
type Gateway struct {
	Control     *ControlPlane
	Engine      *PolicyEngine
	Rules       RuleSet
	Resolver    *Resolver
	Sandbox     *Sandbox
	Limiter     *RateLimiter
	Idempotency *IdempotencyStore
	Metrics     *Metrics
	Logger      *logrus.Logger
	Names       NameResolver
	Node        string // reported as executor_node on results and started events
}

// Submit runs the full admission pipeline for req and returns its
// terminal result. Execution-class failures (timeout, out-of-gas,
// out-of-memory, trap, capability violation) come back as a result with
// Success=false and a nil error; admission and resolution failures come
// back as a typed error the caller matches with errors.Is.
func (g *Gateway) Submit(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	pub := NewEventPublisher()
	defer pub.Close()
	return g.SubmitWithEvents(ctx, req, pub)
}

// SubmitWithEvents is Submit with the caller owning the event stream.
// The publisher receives the request's lifecycle events in order and is
// left open for the caller to close after draining; exactly one terminal
// event (completed or error) is always published.
func (g *Gateway) SubmitWithEvents(ctx context.Context, req ExecutionRequest, pub *EventPublisher) (*ExecutionResult, error) {
	start := time.Now()
	requestID := uuid.NewString()
	log := g.Logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"caller":     req.Caller,
		"cid":        req.CID,
	})
	defer func() { g.Metrics.ObserveRequestDuration(time.Since(start)) }()

	reject := func(outcome string, err error) (*ExecutionResult, error) {
		g.Metrics.ObserveAdmission(outcome)
		log.WithError(err).Info("request rejected")
		pub.Publish(LifecycleEvent{
			Kind: EventError, RequestID: requestID,
			Error: err.Error(), ErrorType: ClassifyError(err),
		})
		return nil, err
	}

	// 1. Schema validation.
	if err := validateRequest(req); err != nil {
		return reject("invalid_request", err)
	}

	// 2. Control plane, one snapshot for the whole request. Frozen is the
	// hard kill switch and is checked before everything else.
	snap := g.Control.Snapshot()
	switch {
	case snap.Frozen:
		return reject("frozen", ErrFrozen)
	case !snap.Enabled:
		return reject("disabled", ErrDisabled)
	case !snap.InCanary(req.Caller):
		return reject("not_in_canary", ErrNotInCanary)
	}

	// 3. Rate limiter.
	if ok, retryAfter := g.Limiter.Allow(req.Caller); !ok {
		return reject("rate_limited", &RateLimitError{RetryAfter: retryAfter})
	}

	// 4. Idempotency: a replay returns the stored terminal result
	// unchanged, counted as an admission but never re-executed.
	if prev, ok := g.Idempotency.Lookup(req.Caller, req.IdempotencyKey); ok {
		g.Metrics.ObserveAdmission("admitted")
		log.Info("idempotent replay, returning stored result")
		pub.Publish(LifecycleEvent{Kind: EventQueued, RequestID: prev.RequestID})
		pub.Publish(terminalEvent(prev))
		return prev, nil
	}

	cid, err := g.resolveIdentifier(ctx, req.CID)
	if err != nil {
		return reject("malformed_identifier", err)
	}

	// 5. Policy engine.
	decision, reason := g.Engine.Decide(g.policyInput(cid, req, snap), g.Rules)
	if decision == DecisionDeny {
		return reject("permission_denied", fmt.Errorf("%w: %s", ErrPolicyDenied, reason))
	}

	g.Metrics.ObserveAdmission("admitted")
	pub.Publish(LifecycleEvent{Kind: EventQueued, RequestID: requestID, CID: cid})

	// 6. Resolver.
	res, err := g.Resolver.Resolve(ctx, ResolveTarget{CID: cid}, ModeFull)
	if err != nil {
		g.Metrics.ObserveTermination(ClassifyError(err))
		log.WithError(err).Warn("resolution failed")
		pub.Publish(LifecycleEvent{
			Kind: EventError, RequestID: requestID, CID: cid,
			Error: err.Error(), ErrorType: ClassifyError(err),
		})
		return nil, err
	}
	g.Metrics.ObserveResolution(res.Source)

	// A freeze raised after admission still refuses work that has not yet
	// entered Running.
	if g.Control.Snapshot().Frozen {
		g.Metrics.ObserveTermination(ErrTypeFrozen)
		pub.Publish(LifecycleEvent{
			Kind: EventError, RequestID: requestID, CID: cid,
			Error: ErrFrozen.Error(), ErrorType: ErrTypeFrozen,
		})
		return nil, ErrFrozen
	}

	sig, err := SignatureFromRecord(res.Record)
	if err != nil {
		g.Metrics.ObserveTermination(ClassifyError(err))
		pub.Publish(LifecycleEvent{
			Kind: EventError, RequestID: requestID, CID: cid,
			Error: err.Error(), ErrorType: ClassifyError(err),
		})
		return nil, err
	}

	// 7. Executor.
	pub.Publish(LifecycleEvent{Kind: EventStarted, RequestID: requestID, CID: cid, ExecutorNode: g.Node})
	log.Info("execution started")

	limits := g.effectiveLimits(req, snap)
	opts := ExecOptions{
		ReturnLogs:       req.Options.ReturnLogs,
		ReturnGasProfile: req.Options.ReturnGasProfile,
		TraceExecution:   req.Options.TraceExecution,
		DeniedCaps:       deniedCapSet(req.Policy),
	}
	exec, err := g.Sandbox.Execute(ctx, res.Data, sig, req.Inputs, limits, opts)
	if err != nil {
		// Setup failure (malformed module, missing export, bad inputs):
		// an error, not an execution-class termination.
		g.Metrics.ObserveTermination(ClassifyError(err))
		log.WithError(err).Error("sandbox setup failed")
		pub.Publish(LifecycleEvent{
			Kind: EventError, RequestID: requestID, CID: cid,
			Error: err.Error(), ErrorType: ClassifyError(err),
		})
		return nil, err
	}

	result := &ExecutionResult{
		RequestID:    requestID,
		Success:      exec.Success,
		Output:       exec.Output,
		Error:        exec.ErrorMsg,
		ErrorType:    exec.ErrorType,
		GasUsed:      exec.GasUsed,
		DurationMS:   exec.Duration.Milliseconds(),
		Logs:         exec.Logs,
		GasProfile:   exec.GasProfile,
		ExecutedAt:   time.Now().UTC(),
		ExecutorNode: g.Node,
	}
	if decision == DecisionWarn {
		result.PolicyNotice = reason
	}

	// The result is stored even if the caller has gone away: a retry with
	// the same key must see the same record.
	g.Idempotency.StoreResult(req.Caller, req.IdempotencyKey, result)
	g.Metrics.ObserveTermination(exec.ErrorType)
	g.Metrics.ObserveGasUsed(exec.GasUsed)
	pub.Publish(terminalEvent(result))
	log.WithFields(logrus.Fields{
		"success":  result.Success,
		"gas_used": result.GasUsed,
	}).Info("execution finished")
	return result, nil
}

func terminalEvent(r *ExecutionResult) LifecycleEvent {
	if r.Success {
		return LifecycleEvent{
			Kind: EventCompleted, RequestID: r.RequestID,
			Success: true, Duration: r.DurationMS, GasUsed: r.GasUsed,
		}
	}
	return LifecycleEvent{
		Kind: EventError, RequestID: r.RequestID,
		Error: r.Error, ErrorType: r.ErrorType,
	}
}

func validateRequest(req ExecutionRequest) error {
	if req.CID == "" {
		return fmt.Errorf("%w: cid is required", ErrInvalidRequest)
	}
	if req.Caller == "" {
		return fmt.Errorf("%w: caller identity is required", ErrInvalidRequest)
	}
	if req.Inputs.Positional != nil && req.Inputs.Named != nil {
		return fmt.Errorf("%w: inputs must be positional or named, not both", ErrInvalidRequest)
	}
	if req.IdempotencyKey != "" && !idempotencyKeyRe.MatchString(req.IdempotencyKey) {
		return fmt.Errorf("%w: idempotency key must be 8-128 chars of [A-Za-z0-9_-]", ErrInvalidRequest)
	}
	if req.Options.TimeoutMS < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidRequest)
	}
	return nil
}

// resolveIdentifier accepts raw CID text directly; anything else is
// handed to the external naming service, if one is configured.
func (g *Gateway) resolveIdentifier(ctx context.Context, s string) (CID, error) {
	if cid, err := ParseCID(s); err == nil {
		return cid, nil
	}
	if g.Names != nil {
		cid, err := g.Names.ResolveName(ctx, s)
		if err != nil {
			return "", fmt.Errorf("%w: naming service: %v", ErrMalformedIdentifier, err)
		}
		return cid, nil
	}
	return "", fmt.Errorf("%w: %q is not a cid and no naming service is configured", ErrMalformedIdentifier, s)
}

// policyInput assembles the transient PolicyInput record. The verified
// flag is derived from cache presence: cache entries are byte-verified at
// insertion, so a cache hit is the only pre-execution proof that the CID's
// bytes have already passed verification.
func (g *Gateway) policyInput(cid CID, req ExecutionRequest, snap ControlState) PolicyInput {
	record, hasRecord := g.Resolver.Index.FindByCID(cid)
	_, inCache := g.Resolver.Cache.Get(cid)

	var simFn func(ProteinHash) float64
	if hasRecord && record.Phi != nil {
		simFn = func(ref ProteinHash) float64 {
			best := 0.0
			for _, m := range g.Resolver.Index.FindByStructural(ref) {
				if m.Phi == nil {
					continue
				}
				if s := CosineSimilarity(record.Phi.Values, m.Phi.Values); s > best {
					best = s
				}
			}
			return best
		}
	}

	limits := g.effectiveLimits(req, snap)
	return PolicyInput{
		CID:                    cid,
		Structural:             record.ASTHash,
		HasVerifiedCID:         inCache && record.ASTHash != "",
		StructuralSimilarityTo: simFn,
		DeclaredGas:            limits.Gas,
		DeclaredMemory:         limits.MemoryBytes,
		DeclaredTimeoutMS:      int(limits.Timeout.Milliseconds()),
		CallerIdentity:         req.Caller,
		FunctionName:           req.Metadata.FunctionName,
		Version:                req.Metadata.Version,
		Tags:                   req.Metadata.Tags,
		ResonanceHz:            req.Attestations.ResonanceHz,
		Complexity:             req.Attestations.Complexity,
		SignatureToken:         req.Attestations.SignatureToken,
	}
}

// effectiveLimits layers request-declared caps over the control plane's
// defaults and clamps the result into the documented ranges.
func (g *Gateway) effectiveLimits(req ExecutionRequest, snap ControlState) ExecLimits {
	limits := ExecLimits{
		MemoryBytes: snap.DefaultMemoryBytes,
		Gas:         snap.DefaultGas,
		Timeout:     time.Duration(snap.DefaultTimeoutMS) * time.Millisecond,
	}
	if p := req.Policy; p != nil {
		if p.MaxMemoryBytes > 0 {
			limits.MemoryBytes = p.MaxMemoryBytes
		}
		if p.MaxGas > 0 {
			limits.Gas = p.MaxGas
		}
		if p.MaxTimeoutMS > 0 {
			limits.Timeout = time.Duration(p.MaxTimeoutMS) * time.Millisecond
		}
	}
	if req.Options.TimeoutMS > 0 {
		limits.Timeout = time.Duration(req.Options.TimeoutMS) * time.Millisecond
	}
	return limits.Clamp()
}

func deniedCapSet(p *RequestPolicy) map[string]bool {
	if p == nil || len(p.DeniedCapabilities) == 0 {
		return nil
	}
	set := make(map[string]bool, len(p.DeniedCapabilities))
	for _, c := range p.DeniedCapabilities {
		set[c] = true
	}
	return set
}
