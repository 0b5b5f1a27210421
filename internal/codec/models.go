package codec

import "time"

// ResultStatus is the provider-side verification session status. The engine
// only issues attestations for completed sessions.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
	ResultPending   ResultStatus = "pending"
	ResultExpired   ResultStatus = "expired"
)

// CheckOutcome is one verification check's result in the provider's
// vocabulary.
type CheckOutcome string

const (
	CheckPassed        CheckOutcome = "passed"
	CheckFailed        CheckOutcome = "failed"
	CheckPartial       CheckOutcome = "partial"
	CheckPending       CheckOutcome = "pending"
	CheckNotApplicable CheckOutcome = "not_applicable"
)

// Passed reports whether the check cleared. Partial, pending, and
// not-applicable all encode as false in the attestation payload: the
// on-chain booleans assert only positive outcomes.
func (o CheckOutcome) Passed() bool { return o == CheckPassed }

// CheckResults carries the per-check outcomes of a verification session.
type CheckResults struct {
	Document  CheckOutcome
	Biometric CheckOutcome
	Liveness  CheckOutcome
	Address   CheckOutcome
	Sanctions CheckOutcome
	PEP       CheckOutcome
	Age       CheckOutcome
}

// VerificationResult is the provider-agnostic output of a KYC session. The
// engine only consumes this shape; producing it is the provider adapters'
// concern.
type VerificationResult struct {
	Provider     string
	SessionID    string
	Status       ResultStatus
	Confidence   int // 0-100
	Checks       CheckResults
	CountryCode  string // ISO 3166-1 alpha-2, optional
	DocumentType string // optional
	CreatedAt    time.Time
}

// VerificationStatus is the fixed on-chain status enum.
type VerificationStatus uint8

const (
	StatusUnknown  VerificationStatus = 0
	StatusVerified VerificationStatus = 1
	StatusFailed   VerificationStatus = 2
	StatusPending  VerificationStatus = 3
	StatusExpired  VerificationStatus = 4
)

// RiskLevel is the coarse risk tier derived from the confidence score.
type RiskLevel uint8

const (
	RiskLow      RiskLevel = 0
	RiskMedium   RiskLevel = 1
	RiskHigh     RiskLevel = 2
	RiskCritical RiskLevel = 3
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	}
	return "unknown"
}

// Versioning metadata stamped into every payload.
const (
	PayloadSchemaVersion = "1.0.0"
	PayloadAPIVersion    = "v1"
	PayloadStandard      = "veritas-kyc-v1"
)

// AttestationData is the privacy-preserving payload encoded on-chain. It
// carries no direct personal identifiers: the subject is referenced only by
// a salted one-way hash.
type AttestationData struct {
	Provider  string
	SessionID string

	Status     VerificationStatus
	VerifiedAt uint64 // unix seconds
	Confidence uint8  // 0-100

	// SubjectHash is 0x-prefixed hex of the salted subject digest.
	// Deterministic per subject, irreversible.
	SubjectHash string

	CountryCode  string
	DocumentType string

	DocumentVerified  bool
	BiometricVerified bool
	LivenessVerified  bool
	AddressVerified   bool
	SanctionsCleared  bool
	PEPCleared        bool
	AgeVerified       bool

	RiskLevel RiskLevel
	RiskScore uint8

	SchemaVersion string
	APIVersion    string
	Standard      string
}

// DefaultSchemaFields is the fixed on-chain layout AttestationData encodes
// against. Field order here is the encoding order.
const DefaultSchemaFields = "string provider, string sessionId, uint8 status, " +
	"uint64 verifiedAt, uint8 confidence, bytes32 subjectHash, " +
	"string country, string documentType, " +
	"bool documentVerified, bool biometricVerified, bool livenessVerified, " +
	"bool addressVerified, bool sanctionsCleared, bool pepCleared, bool ageVerified, " +
	"uint8 riskLevel, uint8 riskScore, " +
	"string schemaVersion, string apiVersion, string standard"
