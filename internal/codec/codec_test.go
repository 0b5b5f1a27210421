package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/schema"
	id "veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

func defaultSchema(t *testing.T) *schema.Definition {
	t.Helper()
	fields, err := schema.ParseFields(DefaultSchemaFields)
	require.NoError(t, err)
	return &schema.Definition{
		Name:    "kyc-attestation",
		Version: schema.Version{Major: 1},
		Fields:  fields,
	}
}

func sampleData() *AttestationData {
	return &AttestationData{
		Provider:          "sumsub",
		SessionID:         "sess-8842",
		Status:            StatusVerified,
		VerifiedAt:        1_755_000_000,
		Confidence:        92,
		SubjectHash:       SubjectHash("salt", "0xabc"),
		CountryCode:       "DE",
		DocumentType:      "passport",
		DocumentVerified:  true,
		BiometricVerified: true,
		LivenessVerified:  true,
		AddressVerified:   false,
		SanctionsCleared:  true,
		PEPCleared:        true,
		AgeVerified:       false,
		RiskLevel:         RiskLow,
		RiskScore:         8,
		SchemaVersion:     PayloadSchemaVersion,
		APIVersion:        PayloadAPIVersion,
		Standard:          PayloadStandard,
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	c, err := NewCodec()
	require.NoError(t, err)
	def := defaultSchema(t)

	variants := map[string]func(*AttestationData){
		"typical":          func(d *AttestationData) {},
		"all checks false": clearAllChecks,
		"zero verify time": func(d *AttestationData) { d.VerifiedAt = 0 },
		"empty optionals":  func(d *AttestationData) { d.CountryCode = ""; d.DocumentType = "" },
		"critical risk":    func(d *AttestationData) { d.RiskLevel = RiskCritical; d.RiskScore = 95; d.Confidence = 5 },
		"failed status":    func(d *AttestationData) { d.Status = StatusFailed },
		"max confidence":   func(d *AttestationData) { d.Confidence = 100; d.RiskScore = 0 },
		"unicode provider": func(d *AttestationData) { d.Provider = "prüf-dienst" },
		"long session id":  func(d *AttestationData) { d.SessionID = strings.Repeat("sess-8842-", 20) },
	}

	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			data := sampleData()
			mutate(data)

			encoded, err := c.Encode(data, def)
			require.NoError(t, err)

			decoded, err := c.Decode(encoded, def)
			require.NoError(t, err)
			assert.Equal(t, data, decoded)
		})
	}
}

// clearAllChecks flips every boolean outcome off.
func clearAllChecks(d *AttestationData) {
	d.DocumentVerified = false
	d.BiometricVerified = false
	d.LivenessVerified = false
	d.AddressVerified = false
	d.SanctionsCleared = false
	d.PEPCleared = false
	d.AgeVerified = false
}

func testAddress(t *testing.T) id.Address {
	t.Helper()
	addr, err := id.ParseAddress("0x" + strings.Repeat("ab", 20))
	require.NoError(t, err)
	return addr
}

func TestCodec_Deterministic(t *testing.T) {
	c, err := NewCodec()
	require.NoError(t, err)
	def := defaultSchema(t)

	first, err := c.Encode(sampleData(), def)
	require.NoError(t, err)
	second, err := c.Encode(sampleData(), def)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCodec_UnknownSchemaFieldsEncodeAsZero(t *testing.T) {
	c, err := NewCodec()
	require.NoError(t, err)

	fields, err := schema.ParseFields("string provider, uint64 notInPayload, bool alsoMissing")
	require.NoError(t, err)
	def := &schema.Definition{Fields: fields}

	encoded, err := c.Encode(sampleData(), def)
	require.NoError(t, err)

	decoded, err := c.Decode(encoded, def)
	require.NoError(t, err)
	assert.Equal(t, "sumsub", decoded.Provider)
	// The unknown fields round-trip as zero without touching the payload.
	assert.Zero(t, decoded.VerifiedAt)
}

func TestCodec_DecodeRejectsMismatchedArity(t *testing.T) {
	c, err := NewCodec()
	require.NoError(t, err)
	def := defaultSchema(t)

	short, err := schema.ParseFields("string provider")
	require.NoError(t, err)

	encoded, err := c.Encode(sampleData(), &schema.Definition{Fields: short})
	require.NoError(t, err)

	_, err = c.Decode(encoded, def)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeVerification))
}

func TestCodec_DecodeRejectsGarbage(t *testing.T) {
	c, err := NewCodec()
	require.NoError(t, err)

	_, err = c.Decode([]byte{0xff, 0x00, 0x13}, defaultSchema(t))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeVerification))
}

// -----------------------------------------------------------------------------
// Subject hash
// -----------------------------------------------------------------------------

func TestSubjectHash_DeterministicPerSubject(t *testing.T) {
	a := SubjectHash("salt", "user-1")
	b := SubjectHash("salt", "user-1")
	assert.Equal(t, a, b)
	assert.Len(t, a, 2+64)
}

func TestSubjectHash_DistinctSubjectsDiffer(t *testing.T) {
	assert.NotEqual(t, SubjectHash("salt", "user-1"), SubjectHash("salt", "user-2"))
}

func TestSubjectHash_SaltChangesHash(t *testing.T) {
	assert.NotEqual(t, SubjectHash("salt-a", "user-1"), SubjectHash("salt-b", "user-1"))
}

// Boundary ambiguity: the separator byte keeps (salt, subject) pairs with
// shifted boundaries from colliding.
func TestSubjectHash_BoundaryUnambiguous(t *testing.T) {
	assert.NotEqual(t, SubjectHash("ab", "c"), SubjectHash("a", "bc"))
}

// -----------------------------------------------------------------------------
// Transform
// -----------------------------------------------------------------------------

func completedResult() *VerificationResult {
	return &VerificationResult{
		Provider:   "sumsub",
		SessionID:  "sess-8842",
		Status:     ResultCompleted,
		Confidence: 92,
		Checks: CheckResults{
			Document:  CheckPassed,
			Biometric: CheckPassed,
			Liveness:  CheckPassed,
			Address:   CheckPartial,
			Sanctions: CheckPassed,
			PEP:       CheckPassed,
			Age:       CheckNotApplicable,
		},
		CountryCode:  "DE",
		DocumentType: "passport",
		CreatedAt:    time.Unix(1_755_000_000, 0),
	}
}

func TestTransform_AppliesPrivacyRules(t *testing.T) {
	tr, err := NewTransformer("salt")
	require.NoError(t, err)

	recipient := testAddress(t)
	data, err := tr.Transform(completedResult(), recipient)
	require.NoError(t, err)

	assert.Equal(t, StatusVerified, data.Status)
	assert.Equal(t, uint8(92), data.Confidence)
	assert.Equal(t, RiskLow, data.RiskLevel)
	assert.Equal(t, uint8(8), data.RiskScore)
	assert.Equal(t, SubjectHash("salt", recipient.String()), data.SubjectHash)
	assert.NotContains(t, data.SubjectHash, recipient.String()[2:10])

	// Only positive outcomes assert true.
	assert.True(t, data.DocumentVerified)
	assert.False(t, data.AddressVerified) // partial
	assert.False(t, data.AgeVerified)     // not applicable

	assert.Equal(t, PayloadStandard, data.Standard)
}

func TestTransform_InputValidation(t *testing.T) {
	tr, err := NewTransformer("salt")
	require.NoError(t, err)
	recipient := testAddress(t)

	t.Run("nil result", func(t *testing.T) {
		_, err := tr.Transform(nil, recipient)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("missing provider", func(t *testing.T) {
		r := completedResult()
		r.Provider = ""
		_, err := tr.Transform(r, recipient)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("confidence out of range", func(t *testing.T) {
		r := completedResult()
		r.Confidence = 101
		_, err := tr.Transform(r, recipient)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("zero recipient", func(t *testing.T) {
		_, err := tr.Transform(completedResult(), "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestNewTransformer_RequiresSalt(t *testing.T) {
	_, err := NewTransformer("")
	require.Error(t, err)
}

func TestRiskFromConfidence_Thresholds(t *testing.T) {
	tests := []struct {
		confidence uint8
		want       RiskLevel
	}{
		{0, RiskCritical},
		{59, RiskCritical},
		{60, RiskHigh},
		{79, RiskHigh},
		{80, RiskMedium},
		{89, RiskMedium},
		{90, RiskLow},
		{100, RiskLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskFromConfidence(tt.confidence), "confidence %d", tt.confidence)
	}
}

func TestMapStatus_Vocabulary(t *testing.T) {
	assert.Equal(t, StatusVerified, mapStatus(ResultCompleted))
	assert.Equal(t, StatusFailed, mapStatus(ResultFailed))
	assert.Equal(t, StatusPending, mapStatus(ResultPending))
	assert.Equal(t, StatusExpired, mapStatus(ResultExpired))
	assert.Equal(t, StatusUnknown, mapStatus(ResultStatus("whatever")))
}
