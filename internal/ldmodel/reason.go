package ldmodel

import "fmt"

// ReasonKind is the discriminator for EvaluationReason (spec §4.5, §9
// "Reason objects: immutable value types with equality by content").
type ReasonKind string

const (
	ReasonOff               ReasonKind = "OFF"
	ReasonTargetMatch        ReasonKind = "TARGET_MATCH"
	ReasonRuleMatch          ReasonKind = "RULE_MATCH"
	ReasonPrerequisiteFailed ReasonKind = "PREREQUISITE_FAILED"
	ReasonFallthrough        ReasonKind = "FALLTHROUGH"
	ReasonError              ReasonKind = "ERROR"
)

// ErrorKind is the taxonomy from spec §7.
type ErrorKind string

const (
	ErrorFlagNotFound     ErrorKind = "FLAG_NOT_FOUND"
	ErrorMalformedFlag    ErrorKind = "MALFORMED_FLAG"
	ErrorUserNotSpecified ErrorKind = "USER_NOT_SPECIFIED"
	ErrorClientNotReady   ErrorKind = "CLIENT_NOT_READY"
	ErrorWrongType        ErrorKind = "WRONG_TYPE"
	ErrorException        ErrorKind = "EXCEPTION"
)

// BigSegmentsStatus is attached to a reason when a segment match
// consulted a big segment (spec §4.4, §4.10).
type BigSegmentsStatus string

const (
	BigSegmentsHealthy      BigSegmentsStatus = "HEALTHY"
	BigSegmentsStale        BigSegmentsStatus = "STALE"
	BigSegmentsStoreError   BigSegmentsStatus = "STORE_ERROR"
	BigSegmentsNotConfigured BigSegmentsStatus = "NOT_CONFIGURED"
)

// EvaluationReason explains why an evaluation produced its value. It's a
// plain comparable value type (content equality via ==/reflect.DeepEqual);
// preprocessed reasons are cached as values so the evaluator's hot path
// doesn't build one per call (spec §4.5, §9).
type EvaluationReason struct {
	Kind               ReasonKind
	RuleIndex          int
	RuleID             string
	PrerequisiteKey    string
	InExperiment       bool
	ErrorKind          ErrorKind
	BigSegmentsStatus  BigSegmentsStatus
}

func (r EvaluationReason) String() string {
	switch r.Kind {
	case ReasonRuleMatch:
		return fmt.Sprintf("RULE_MATCH(%d,%s)", r.RuleIndex, r.RuleID)
	case ReasonPrerequisiteFailed:
		return fmt.Sprintf("PREREQUISITE_FAILED(%s)", r.PrerequisiteKey)
	case ReasonError:
		return fmt.Sprintf("ERROR(%s)", r.ErrorKind)
	default:
		return string(r.Kind)
	}
}

// WithBigSegmentsStatus returns a copy of r with the status attached —
// used when segment matching needed to consult an unbounded segment.
func (r EvaluationReason) WithBigSegmentsStatus(status BigSegmentsStatus) EvaluationReason {
	r.BigSegmentsStatus = status
	return r
}

var (
	reasonOff         = EvaluationReason{Kind: ReasonOff}
	reasonFallthrough = EvaluationReason{Kind: ReasonFallthrough}
)

func ReasonOffValue() EvaluationReason { return reasonOff }

func ReasonFallthroughValue(inExperiment bool) EvaluationReason {
	r := reasonFallthrough
	r.InExperiment = inExperiment
	return r
}

func ReasonTargetMatchValue() EvaluationReason {
	return EvaluationReason{Kind: ReasonTargetMatch}
}

func ReasonRuleMatchValue(index int, id string, inExperiment bool) EvaluationReason {
	return EvaluationReason{Kind: ReasonRuleMatch, RuleIndex: index, RuleID: id, InExperiment: inExperiment}
}

func ReasonPrerequisiteFailedValue(key string) EvaluationReason {
	return EvaluationReason{Kind: ReasonPrerequisiteFailed, PrerequisiteKey: key}
}

func ReasonErrorValue(kind ErrorKind) EvaluationReason {
	return EvaluationReason{Kind: ReasonError, ErrorKind: kind}
}
