// core/sandbox.go
package core

// The sandbox executor instantiates a verified WASM module under resource
// limits and invokes a named export: a wasmer-go engine/store/instance
// plus a capability host import set. The sandbox grants no ambient
// authority at all — the only imports are the gas-check hook wasmgen
// always emits and three read-only capabilities (emit event, read clock,
// read counter). No filesystem, no network.

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wasmerio/wasmer-go/wasmer"

	"codeforge/core/sourcelang"
	"codeforge/core/wasmgen"
)

// CallSignature is the subset of a build-time FuncDecl the executor
// needs to marshal inputs and unmarshal the result: the export name and
// each parameter's/the return's declared scalar type. It deliberately
// carries no statement bodies — by the time bytes reach the sandbox they
// have already been compiled, and only the manifest record's Signature
// (not the original source) travels with them through the resolver.
type CallSignature struct {
	Entry  string
	Params []sourcelang.Param
	Return sourcelang.Type
}

// SignatureFromRecord derives a CallSignature from a resolved manifest
// record, failing with ErrTypeUnsupported if the record carries no
// signature (e.g. a manifest authored before this field existed).
func SignatureFromRecord(r ArtifactRecord) (CallSignature, error) {
	if r.Signature == nil {
		return CallSignature{}, fmt.Errorf("%w: artifact record %s has no declared signature", ErrTypeUnsupported, r.CID)
	}
	params := make([]sourcelang.Param, len(r.Signature.Params))
	for i, p := range r.Signature.Params {
		t, ok := sourcelang.ParseType(p.Type)
		if !ok {
			return CallSignature{}, fmt.Errorf("%w: unknown declared type %q", ErrTypeUnsupported, p.Type)
		}
		params[i] = sourcelang.Param{Name: p.Name, Type: t}
	}
	ret, ok := sourcelang.ParseType(r.Signature.Return)
	if !ok {
		return CallSignature{}, fmt.Errorf("%w: unknown declared return type %q", ErrTypeUnsupported, r.Signature.Return)
	}
	entry := r.Entry
	if entry == "" {
		entry = r.Name
	}
	return CallSignature{Entry: entry, Params: params, Return: ret}, nil
}

// ExecState is one stage of the per-execution state machine: Pending →
// Loading → Instantiated → Running → (Completed | Failed). Transitions
// are monotonic; the zero value is Pending.
type ExecState int

const (
	StatePending ExecState = iota
	StateLoading
	StateInstantiated
	StateRunning
	StateCompleted
	StateFailed
)

func (s ExecState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoading:
		return "loading"
	case StateInstantiated:
		return "instantiated"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Hard bounds every execution's limits are clamped into.
const (
	MinMemoryBytes = 1 << 10       // 1 KiB
	MaxMemoryBytes = 1 << 30       // 1 GiB
	MinGas         = 1_000
	MaxGas         = 1_000_000_000
	MinTimeout     = 100 * time.Millisecond
	MaxTimeout     = 60 * time.Second
)

// ExecLimits clamps the resources one execution may consume.
type ExecLimits struct {
	MemoryBytes uint64
	Gas         uint64
	Timeout     time.Duration
}

// DefaultExecLimits returns the limits applied when a request declares
// none: 1 MiB of memory, 1e6 gas, 5 s wall clock.
func DefaultExecLimits() ExecLimits {
	return ExecLimits{MemoryBytes: 1 << 20, Gas: 1_000_000, Timeout: 5 * time.Second}
}

// Clamp brings every field of l into its documented [min, max] range.
func (l ExecLimits) Clamp() ExecLimits {
	clampU := func(v, lo, hi uint64) uint64 {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	if l.MemoryBytes == 0 {
		l.MemoryBytes = DefaultExecLimits().MemoryBytes
	}
	if l.Gas == 0 {
		l.Gas = DefaultExecLimits().Gas
	}
	if l.Timeout == 0 {
		l.Timeout = DefaultExecLimits().Timeout
	}
	l.MemoryBytes = clampU(l.MemoryBytes, MinMemoryBytes, MaxMemoryBytes)
	l.Gas = clampU(l.Gas, MinGas, MaxGas)
	if l.Timeout < MinTimeout {
		l.Timeout = MinTimeout
	}
	if l.Timeout > MaxTimeout {
		l.Timeout = MaxTimeout
	}
	return l
}

// ExecInput is either a positional list or a named map of scalar values;
// exactly one of the two fields should be set. Positional lists map to
// successive parameters; named maps are matched against the declared
// parameter names.
type ExecInput struct {
	Positional []any
	Named      map[string]any
}

// GasProfile is the optional per-execution detail a caller requests via
// the return_gas_profile / trace_execution options.
type GasProfile struct {
	InstructionCounts map[string]uint64
	MemoryPeakBytes   uint64
	SyscallCounts     map[string]uint64
}

// ExecResult is the terminal record of one sandboxed execution.
type ExecResult struct {
	Success     bool
	Output      any
	ErrorType   ErrorType
	ErrorMsg    string
	GasUsed     uint64
	Duration    time.Duration
	Logs        []string
	GasProfile  *GasProfile
	FinalState  ExecState
}

// capabilityCall counts how many times each host capability was invoked,
// feeding GasProfile.SyscallCounts when requested. gasChecks counts the
// instrumentation checkpoints the compiled module passed, the closest
// observable proxy for instruction-level progress.
type capabilityCall struct {
	emitEvent   uint64
	readClock   uint64
	readCounter uint64
	gasChecks   uint64
}

// Sandbox instantiates verified WASM bytes and invokes a named export
// under the given resource limits. One Sandbox value is reused across
// executions; each Execute call owns its own wasmer store/instance
// exclusively and destroys it on completion.
type Sandbox struct {
	engine *wasmer.Engine
}

// NewSandbox constructs a Sandbox backed by a fresh wasmer engine.
func NewSandbox() *Sandbox {
	return &Sandbox{engine: wasmer.NewEngine()}
}

// ExecOptions requests optional observability detail beyond the always-on
// gas/duration accounting, plus the capability deny-list the request's
// policy may have attached.
type ExecOptions struct {
	ReturnLogs       bool
	ReturnGasProfile bool
	TraceExecution   bool
	DeniedCaps       map[string]bool
}

// Execute loads moduleBytes, instantiates it under limits, invokes entry
// with inputs, and returns exactly one terminal ExecResult. It never
// returns a Go error for execution-class failures (timeout, out-of-gas,
// out-of-memory, trap, policy violation) — those are reported as
// success=false with the matching ErrorType. A non-nil
// error return means the module itself could not be loaded or
// instantiated (e.g. malformed bytes, missing export) or the inputs could
// not be marshalled against sig — a setup failure, not an execution-class one.
func (sb *Sandbox) Execute(ctx context.Context, moduleBytes []byte, sig CallSignature, input ExecInput, limits ExecLimits, opts ExecOptions) (*ExecResult, error) {
	limits = limits.Clamp()

	store := wasmer.NewStore(sb.engine)
	mod, err := wasmer.NewModule(store, moduleBytes)
	if err != nil {
		return nil, fmt.Errorf("core: sandbox: compile module: %w", err)
	}

	gasBudget := int64(limits.Gas)
	used := new(int64)
	calls := &capabilityCall{}
	violated := new(int32)

	imports := sb.registerHost(store, gasBudget, used, calls, violated, opts.DeniedCaps)

	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, fmt.Errorf("core: sandbox: instantiate: %w", err)
	}
	defer instance.Close()

	export, err := instance.Exports.GetFunction(sig.Entry)
	if err != nil {
		return nil, fmt.Errorf("core: sandbox: export %q not found: %w", sig.Entry, err)
	}

	args, err := marshalInputs(sig, input)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	type callOutcome struct {
		ret any
		err error
	}
	done := make(chan callOutcome, 1)
	start := time.Now()
	go func() {
		ret, callErr := export(args...)
		done <- callOutcome{ret, callErr}
	}()

	select {
	case <-runCtx.Done():
		return &ExecResult{
			Success:    false,
			ErrorType:  ErrTypeTimeout,
			ErrorMsg:   ErrSandboxTimeout.Error(),
			GasUsed:    uint64(atomic.LoadInt64(used)),
			Duration:   time.Since(start),
			FinalState: StateFailed,
		}, nil
	case out := <-done:
		duration := time.Since(start)
		gasUsed := uint64(atomic.LoadInt64(used))
		if atomic.LoadInt32(violated) != 0 {
			return &ExecResult{
				Success: false, ErrorType: ErrTypePolicyViolation,
				ErrorMsg: ErrPolicyViolation.Error(), GasUsed: gasUsed,
				Duration: duration, FinalState: StateFailed,
			}, nil
		}
		if out.err != nil {
			return classifyTrap(out.err, gasUsed, limits.Gas, duration), nil
		}
		result := &ExecResult{
			Success: true, Output: coerceOutput(out.ret, sig.Return),
			GasUsed: gasUsed, Duration: duration, FinalState: StateCompleted,
		}
		if opts.ReturnGasProfile || opts.TraceExecution {
			result.GasProfile = &GasProfile{
				InstructionCounts: map[string]uint64{
					"gas_checkpoints": calls.gasChecks,
				},
				SyscallCounts: map[string]uint64{
					"emit_event":   calls.emitEvent,
					"read_clock":   calls.readClock,
					"read_counter": calls.readCounter,
				},
			}
		}
		return result, nil
	}
}

// classifyTrap inspects a wasmer runtime error and maps it to a
// termination class. The gas counter is incremented before the
// in-module budget check, so a trap with the counter past the budget is
// gas exhaustion (reported gas is clamped back to the budget: the over
// budget instruction never ran); memory-growth failures surface through
// wasmer's trap message; everything else is a plain runtime trap.
func classifyTrap(err error, gasUsed, gasBudget uint64, duration time.Duration) *ExecResult {
	msg := err.Error()
	if gasUsed > gasBudget {
		return &ExecResult{Success: false, ErrorType: ErrTypeOutOfGas, ErrorMsg: ErrGasExhausted.Error(), GasUsed: gasBudget, Duration: duration, FinalState: StateFailed}
	}
	if strings.Contains(strings.ToLower(msg), "memory") {
		return &ExecResult{Success: false, ErrorType: ErrTypeOutOfMemory, ErrorMsg: ErrOutOfMemory.Error(), GasUsed: gasUsed, Duration: duration, FinalState: StateFailed}
	}
	return &ExecResult{Success: false, ErrorType: ErrTypeRuntimeError, ErrorMsg: fmt.Sprintf("%s: %s", ErrRuntimeTrap.Error(), msg), GasUsed: gasUsed, Duration: duration, FinalState: StateFailed}
}

// registerHost builds the import object every compiled module needs: the
// gas-check hook wasmgen always emits, plus the three read-only
// capabilities (emit_event, read_clock, read_counter). No filesystem or
// network import is ever registered — an attempt to call an
// unregistered import simply cannot link, which is the sandbox's
// no-ambient-authority guarantee.
func (sb *Sandbox) registerHost(store *wasmer.Store, gasBudget int64, used *int64, calls *capabilityCall, violated *int32, deniedCaps map[string]bool) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	// reject marks a denied capability call: the guest sees a trap-shaped
	// error return and violated is latched so Execute reports
	// policy_violation instead of whatever the guest did with it.
	reject := func(cap string) bool {
		if deniedCaps[cap] {
			atomic.StoreInt32(violated, 1)
			return true
		}
		return false
	}

	consumeGas := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32)),
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32)),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			cost := int64(args[0].I32())
			atomic.AddUint64(&calls.gasChecks, 1)
			remaining := atomic.AddInt64(used, cost)
			if remaining > gasBudget {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	emitEvent := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32)), wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32))),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if reject("emit_event") {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			atomic.AddUint64(&calls.emitEvent, 1)
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	readClock := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(), wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I64))),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if reject("read_clock") {
				return []wasmer.Value{wasmer.NewI64(-1)}, nil
			}
			atomic.AddUint64(&calls.readClock, 1)
			return []wasmer.Value{wasmer.NewI64(time.Now().UnixNano())}, nil
		},
	)

	readCounter := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(), wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I64))),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if reject("read_counter") {
				return []wasmer.Value{wasmer.NewI64(-1)}, nil
			}
			n := atomic.AddUint64(&calls.readCounter, 1)
			return []wasmer.Value{wasmer.NewI64(int64(n))}, nil
		},
	)

	imports.Register(wasmgen.GasImportModule, map[string]wasmer.IntoExtern{
		wasmgen.GasImportName: consumeGas,
	})
	imports.Register("cap", map[string]wasmer.IntoExtern{
		"emit_event":   emitEvent,
		"read_clock":   readClock,
		"read_counter": readCounter,
	})
	return imports
}

// marshalInputs converts a positional or named ExecInput into the
// ordered arguments the compiled export expects. Named maps are matched
// against the declared parameter names the manifest record's signature
// carries; positional lists map to successive parameters.
func marshalInputs(sig CallSignature, input ExecInput) ([]any, error) {
	if input.Named != nil {
		args := make([]any, len(sig.Params))
		for i, p := range sig.Params {
			v, ok := input.Named[p.Name]
			if !ok {
				return nil, fmt.Errorf("%w: missing named input %q", ErrTypeUnsupported, p.Name)
			}
			conv, err := convertScalar(v, p.Type)
			if err != nil {
				return nil, err
			}
			args[i] = conv
		}
		return args, nil
	}
	if len(input.Positional) != len(sig.Params) {
		return nil, fmt.Errorf("%w: expected %d positional inputs, got %d", ErrTypeUnsupported, len(sig.Params), len(input.Positional))
	}
	args := make([]any, len(input.Positional))
	for i, v := range input.Positional {
		conv, err := convertScalar(v, sig.Params[i].Type)
		if err != nil {
			return nil, err
		}
		args[i] = conv
	}
	return args, nil
}

func convertScalar(v any, t sourcelang.Type) (any, error) {
	switch t {
	case sourcelang.TypeI32, sourcelang.TypeBool:
		switch n := v.(type) {
		case int32:
			return n, nil
		case int:
			return int32(n), nil
		case int64:
			return int32(n), nil
		case float64:
			return int32(n), nil
		case bool:
			if n {
				return int32(1), nil
			}
			return int32(0), nil
		}
	case sourcelang.TypeI64:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case float64:
			return int64(n), nil
		}
	case sourcelang.TypeF64:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	}
	return nil, fmt.Errorf("%w: cannot convert %T to %s", ErrTypeUnsupported, v, t)
}

// coerceOutput converts the dynamically-typed native function's single
// return value back to a plain Go scalar, applying the bool re-widening
// the i32 wire representation elides. Wasmer's dynamic Function wrapper
// already unmarshals to a native Go value (int32/int64/float64), not a
// wasmer.Value, when the export has exactly one result.
func coerceOutput(ret any, t sourcelang.Type) any {
	switch t {
	case sourcelang.TypeBool:
		switch n := ret.(type) {
		case int32:
			return n != 0
		case int64:
			return n != 0
		}
		return false
	default:
		return ret
	}
}
