package codec

import (
	id "veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

// Transformer applies the privacy rules that turn a provider verification
// result into an on-chain payload.
type Transformer struct {
	salt string
}

// NewTransformer builds a transformer with the process-wide subject salt.
func NewTransformer(salt string) (*Transformer, error) {
	if salt == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject hash salt is required")
	}
	return &Transformer{salt: salt}, nil
}

// Transform converts a verification result into AttestationData. The
// recipient is also the subject: it enters the payload only as a salted
// hash, so the same user always maps to the same subject hash without the
// payload carrying a reversible identifier.
func (t *Transformer) Transform(result *VerificationResult, recipient id.Address) (*AttestationData, error) {
	if result == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "verification result is required")
	}
	if result.Provider == "" || result.SessionID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "verification result needs provider and session id")
	}
	if result.Confidence < 0 || result.Confidence > 100 {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "confidence %d outside 0-100", result.Confidence)
	}
	if recipient.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "recipient address is required")
	}

	confidence := uint8(result.Confidence)
	return &AttestationData{
		Provider:   result.Provider,
		SessionID:  result.SessionID,
		Status:     mapStatus(result.Status),
		VerifiedAt: uint64(result.CreatedAt.Unix()),
		Confidence: confidence,

		SubjectHash: SubjectHash(t.salt, recipient.String()),

		CountryCode:  result.CountryCode,
		DocumentType: result.DocumentType,

		DocumentVerified:  result.Checks.Document.Passed(),
		BiometricVerified: result.Checks.Biometric.Passed(),
		LivenessVerified:  result.Checks.Liveness.Passed(),
		AddressVerified:   result.Checks.Address.Passed(),
		SanctionsCleared:  result.Checks.Sanctions.Passed(),
		PEPCleared:        result.Checks.PEP.Passed(),
		AgeVerified:       result.Checks.Age.Passed(),

		RiskLevel: RiskFromConfidence(confidence),
		RiskScore: 100 - confidence,

		SchemaVersion: PayloadSchemaVersion,
		APIVersion:    PayloadAPIVersion,
		Standard:      PayloadStandard,
	}, nil
}

// mapStatus translates the provider status vocabulary to the fixed on-chain
// enum.
func mapStatus(status ResultStatus) VerificationStatus {
	switch status {
	case ResultCompleted:
		return StatusVerified
	case ResultFailed:
		return StatusFailed
	case ResultPending:
		return StatusPending
	case ResultExpired:
		return StatusExpired
	}
	return StatusUnknown
}

// RiskFromConfidence derives the risk tier with fixed thresholds.
func RiskFromConfidence(confidence uint8) RiskLevel {
	switch {
	case confidence < 60:
		return RiskCritical
	case confidence < 80:
		return RiskHigh
	case confidence < 90:
		return RiskMedium
	default:
		return RiskLow
	}
}
