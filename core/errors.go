package core

import "errors"

// Sentinel errors shared across the resolver, cache, policy engine, and
// gateway. Callers compare against these with errors.Is rather than string
// matching.
var (
	ErrNotFound           = errors.New("core: artifact not found")
	ErrCIDMismatch        = errors.New("core: recomputed cid does not match requested cid")
	ErrHashMismatch       = errors.New("core: recomputed content hash does not match manifest entry")
	ErrFrozen             = errors.New("core: control plane is frozen")
	ErrDisabled           = errors.New("core: operation disabled by control plane")
	ErrNotInCanary        = errors.New("core: caller not selected into canary fraction")
	ErrRateLimited        = errors.New("core: rate limit exceeded")
	ErrPolicyDenied       = errors.New("core: denied by policy")
	ErrDuplicateIntent    = errors.New("core: duplicate intent key in flight")
	ErrGasExhausted       = errors.New("core: gas exhausted")
	ErrOutOfMemory        = errors.New("core: sandbox memory limit exceeded")
	ErrSandboxTimeout     = errors.New("core: sandbox execution timed out")
	ErrRuntimeTrap        = errors.New("core: wasm module trapped")
	ErrPolicyViolation    = errors.New("core: sandbox capability call rejected by policy")
	ErrTypeUnsupported    = errors.New("core: unsupported input type")
	ErrInvalidRequest     = errors.New("core: invalid request")
	ErrMalformedIdentifier = errors.New("core: malformed identifier")
	ErrManifestParseError = errors.New("core: malformed manifest entry")
	ErrManifestConflict   = errors.New("core: conflicting manifest records for the same cid")
	ErrNetworkTransient   = errors.New("core: transient network failure")
	ErrNetworkFatal       = errors.New("core: fatal network failure")
	ErrInternal           = errors.New("core: internal error")
)

// ErrorType is the stable, user-visible error-class string carried on every
// execution result and lifecycle error event, per the error taxonomy.
type ErrorType string

const (
	ErrTypeInvalidRequest  ErrorType = "invalid_request"
	ErrTypeDisabled        ErrorType = "disabled"
	ErrTypeFrozen          ErrorType = "frozen"
	ErrTypeNotInCanary     ErrorType = "not_in_canary"
	ErrTypeRateLimited     ErrorType = "rate_limited"
	ErrTypePermissionDenied ErrorType = "permission_denied"
	ErrTypeNotFound        ErrorType = "not_found"
	ErrTypeMalformedID     ErrorType = "malformed_identifier"
	ErrTypeIntegrity       ErrorType = "integrity_mismatch"
	ErrTypeManifestConflict ErrorType = "manifest_conflict"
	ErrTypeManifestParse   ErrorType = "manifest_parse_error"
	ErrTypeNetTransient    ErrorType = "network_transient"
	ErrTypeNetFatal        ErrorType = "network_fatal"
	ErrTypeTimeout         ErrorType = "timeout"
	ErrTypeOutOfGas        ErrorType = "out_of_gas"
	ErrTypeOutOfMemory     ErrorType = "out_of_memory"
	ErrTypeRuntimeError      ErrorType = "runtime_error"
	ErrTypePolicyViolation   ErrorType = "policy_violation"
	ErrTypeUnsupportedInput  ErrorType = "type_unsupported"
	ErrTypeInternal          ErrorType = "internal"
)

// ClassifyError maps a returned error to its stable error-class string, for
// callers (the gateway's terminal result, the health endpoint) that need
// to surface the taxonomy without reaching into errors.Is chains
// themselves.
func ClassifyError(err error) ErrorType {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return ErrTypeInvalidRequest
	case errors.Is(err, ErrDisabled):
		return ErrTypeDisabled
	case errors.Is(err, ErrFrozen):
		return ErrTypeFrozen
	case errors.Is(err, ErrNotInCanary):
		return ErrTypeNotInCanary
	case errors.Is(err, ErrRateLimited):
		return ErrTypeRateLimited
	case errors.Is(err, ErrPolicyDenied):
		return ErrTypePermissionDenied
	case errors.Is(err, ErrNotFound):
		return ErrTypeNotFound
	case errors.Is(err, ErrMalformedIdentifier):
		return ErrTypeMalformedID
	case errors.Is(err, ErrCIDMismatch), errors.Is(err, ErrHashMismatch):
		return ErrTypeIntegrity
	case errors.Is(err, ErrManifestConflict):
		return ErrTypeManifestConflict
	case errors.Is(err, ErrManifestParseError):
		return ErrTypeManifestParse
	case errors.Is(err, ErrNetworkTransient):
		return ErrTypeNetTransient
	case errors.Is(err, ErrNetworkFatal):
		return ErrTypeNetFatal
	case errors.Is(err, ErrSandboxTimeout):
		return ErrTypeTimeout
	case errors.Is(err, ErrGasExhausted):
		return ErrTypeOutOfGas
	case errors.Is(err, ErrOutOfMemory):
		return ErrTypeOutOfMemory
	case errors.Is(err, ErrRuntimeTrap):
		return ErrTypeRuntimeError
	case errors.Is(err, ErrPolicyViolation):
		return ErrTypePolicyViolation
	case errors.Is(err, ErrTypeUnsupported):
		return ErrTypeUnsupportedInput
	default:
		return ErrTypeInternal
	}
}
