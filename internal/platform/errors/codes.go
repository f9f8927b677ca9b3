// Package errors provides structured ledger errors with stable codes.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Entity model errors
	CodeSchemaViolation  Code = "SCHEMA_VIOLATION"
	CodeIdentityConflict Code = "IDENTITY_CONFLICT"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"

	// Relationship graph errors
	CodeNotFound            Code = "NOT_FOUND"
	CodeUnsupportedRelation Code = "UNSUPPORTED_RELATION"
	CodeDanglingReference   Code = "DANGLING_REFERENCE"

	// Invariant errors
	CodeCapabilityMismatch  Code = "CAPABILITY_MISMATCH"
	CodeNegativeBalance     Code = "NEGATIVE_BALANCE"
	CodeInvalidAmount       Code = "INVALID_AMOUNT"
	CodeRuleMismatch        Code = "RULE_MISMATCH"
	CodeInconsistentBalance Code = "INCONSISTENT_BALANCE"
	CodeRemovalBlocked      Code = "REMOVAL_BLOCKED"
	CodeUnauthorizedActor   Code = "UNAUTHORIZED_ACTOR"

	// Write serialization errors
	CodeContention Code = "CONTENTION"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - malformed input
	case CodeSchemaViolation,
		CodeInvalidArgument,
		CodeInvalidAmount,
		CodeUnsupportedRelation:
		return codes.InvalidArgument

	// FailedPrecondition - ledger state doesn't allow operation
	case CodeDanglingReference,
		CodeCapabilityMismatch,
		CodeNegativeBalance,
		CodeRuleMismatch,
		CodeRemovalBlocked:
		return codes.FailedPrecondition

	case CodeUnauthorizedActor:
		return codes.PermissionDenied

	case CodeNotFound:
		return codes.NotFound

	case CodeIdentityConflict:
		return codes.AlreadyExists

	case CodeContention:
		return codes.Aborted

	default:
		return codes.Internal
	}
}

// Retryable reports whether an operation failing with this code may succeed
// when retried against the same input.
func (c Code) Retryable() bool {
	return c == CodeContention
}
