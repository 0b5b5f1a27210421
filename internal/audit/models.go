package audit

import "time"

// Actions recorded on the trail. One constant per domain action so
// downstream consumers can filter without string matching.
const (
	ActionSchemaRegistered    = "schema_registered"
	ActionAttestationCreated  = "attestation_created"
	ActionAttestationRevoked  = "attestation_revoked"
	ActionBatchIssued         = "batch_issued"
	ActionVerificationRun     = "verification_run"
	ActionRateLimitExceeded   = "rate_limit_exceeded"
	ActionConfirmedNotStored  = "confirmed_unpersisted_gap"
	ActionSubmissionExhausted = "submission_retries_exhausted"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp     time.Time         `json:"timestamp"`
	RequestID     string            `json:"request_id,omitempty"`
	Actor         string            `json:"actor,omitempty"`
	Action        string            `json:"action"`
	AttestationID string            `json:"attestation_id,omitempty"`
	Recipient     string            `json:"recipient,omitempty"`
	SchemaUID     string            `json:"schema_uid,omitempty"`
	TxHash        string            `json:"tx_hash,omitempty"`
	Outcome       string            `json:"outcome,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}
