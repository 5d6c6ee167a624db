// Package bnerror provides the three disjoint BACnet error taxonomies
// (Reject, Abort, and class/code Error) plus the local decode-only
// sentinels, matching the distinctions ASHRAE 135 clause 18 requires
// implementations to preserve end-to-end.
package bnerror

import (
	"errors"
	"fmt"
)

// Local decode-only failures. The dispatcher drops the frame silently on
// these; they never cross the wire.
var (
	ErrTruncated = errors.New("bacnet: truncated buffer")
	ErrInvalidTag = errors.New("bacnet: invalid tag")
)

// RejectReason is why a peer could not decode our request. Terminal;
// never retried.
type RejectReason byte

const (
	RejectOther RejectReason = 0
	RejectBufferOverflow RejectReason = 1
	RejectInconsistentParameters RejectReason = 2
	RejectInvalidParameterDataType RejectReason = 3
	RejectInvalidTag RejectReason = 4
	RejectMissingRequiredParameter RejectReason = 5
	RejectParameterOutOfRange RejectReason = 6
	RejectTooManyArguments RejectReason = 7
	RejectUndefinedEnumeration RejectReason = 8
	RejectUnrecognizedService RejectReason = 9
)

func (r RejectReason) String() string {
	switch r {
	case RejectBufferOverflow:
		return "buffer-overflow"
	case RejectInconsistentParameters:
		return "inconsistent-parameters"
	case RejectInvalidParameterDataType:
		return "invalid-parameter-data-type"
	case RejectInvalidTag:
		return "invalid-tag"
	case RejectMissingRequiredParameter:
		return "missing-required-parameter"
	case RejectParameterOutOfRange:
		return "parameter-out-of-range"
	case RejectTooManyArguments:
		return "too-many-arguments"
	case RejectUndefinedEnumeration:
		return "undefined-enumeration"
	case RejectUnrecognizedService:
		return "unrecognized-service"
	default:
		return "other"
	}
}

// RejectError is a terminal, non-retried Reject-PDU cause.
type RejectError struct {
	Reason RejectReason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("reject: %s", e.Reason)
}

func NewRejectError(reason RejectReason) *RejectError {
	return &RejectError{Reason: reason}
}

// AbortReason is why a peer understood but could not process a request.
// Terminal; never retried.
type AbortReason byte

const (
	AbortOther AbortReason = 0
	AbortBufferOverflow AbortReason = 1
	AbortInvalidAPDUInThisState AbortReason = 2
	AbortPreemptedByHigherPriorityTask AbortReason = 3
	AbortSegmentationNotSupported AbortReason = 4
	AbortSecurityError AbortReason = 5
	AbortInsufficientSecurity AbortReason = 6
	AbortWindowSizeOutOfRange AbortReason = 7
	AbortApplicationExceededReplyTime AbortReason = 8
	AbortOutOfResources AbortReason = 9
	AbortTSMTimeout AbortReason = 10
	AbortAPDUTooLong AbortReason = 11
)

func (r AbortReason) String() string {
	switch r {
	case AbortBufferOverflow:
		return "buffer-overflow"
	case AbortInvalidAPDUInThisState:
		return "invalid-apdu-in-this-state"
	case AbortPreemptedByHigherPriorityTask:
		return "preempted-by-higher-priority-task"
	case AbortSegmentationNotSupported:
		return "segmentation-not-supported"
	case AbortSecurityError:
		return "security-error"
	case AbortInsufficientSecurity:
		return "insufficient-security"
	case AbortWindowSizeOutOfRange:
		return "window-size-out-of-range"
	case AbortApplicationExceededReplyTime:
		return "application-exceeded-reply-time"
	case AbortOutOfResources:
		return "out-of-resources"
	case AbortTSMTimeout:
		return "tsm-timeout"
	case AbortAPDUTooLong:
		return "apdu-too-long"
	default:
		return "other"
	}
}

// AbortError is a terminal, non-retried Abort-PDU cause.
type AbortError struct {
	Reason AbortReason
	Server bool // true if we are the one aborting (vs. having received one)
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("abort: %s", e.Reason)
}

func NewAbortError(reason AbortReason) *AbortError {
	return &AbortError{Reason: reason}
}

// ErrorClass / ErrorCode per ASHRAE 135 Table 18-1 (the subset this core's
// services raise directly; a full table lives with the out-of-scope object
// layer).
type ErrorClass uint32

const (
	ErrorClassDevice ErrorClass = 0
	ErrorClassObject ErrorClass = 1
	ErrorClassProperty ErrorClass = 2
	ErrorClassResources ErrorClass = 3
	ErrorClassSecurity ErrorClass = 4
	ErrorClassServices ErrorClass = 5
	ErrorClassVT ErrorClass = 6
	ErrorClassCommunication ErrorClass = 7
)

type ErrorCode uint32

const (
	ErrorCodeOther ErrorCode = 0
	ErrorCodePasswordFailure ErrorCode = 26
	ErrorCodeUnknownObject ErrorCode = 31
	ErrorCodeUnknownProperty ErrorCode = 32
	ErrorCodeWriteAccessDenied ErrorCode = 40
	ErrorCodeLogBufferFull ErrorCode = 93
	ErrorCodeInvalidArrayIndex ErrorCode = 42
	ErrorCodeValueOutOfRange ErrorCode = 37
	ErrorCodeServiceRequestDenied ErrorCode = 29
	ErrorCodeOperationalProblem ErrorCode = 25
)

// serviceErrorImpl is the semantic-failure taxonomy: a (Class, Code) pair
// surfaced to the caller's error handler. Terminal; never retried.
type serviceErrorImpl struct {
	Class ErrorClass
	Code ErrorCode
}

func (e *serviceErrorImpl) Error() string {
	return fmt.Sprintf("error: class=%d code=%d", e.Class, e.Code)
}

// NewServiceError builds the (ErrorClass, ErrorCode) error requires.
func NewServiceError(class ErrorClass, code ErrorCode) error {
	return &serviceErrorImpl{Class: class, Code: code}
}

// AsServiceError extracts the (Class, Code) pair from an error produced by
// NewServiceError, mirroring errors.As.
func AsServiceError(err error) (class ErrorClass, code ErrorCode, ok bool) {
	se, ok := err.(*serviceErrorImpl)
	if !ok {
		return 0, 0, false
	}
	return se.Class, se.Code, true
}
