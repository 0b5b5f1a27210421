package codec

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"veritas/internal/schema"
	dErrors "veritas/pkg/domain-errors"
)

// Codec encodes AttestationData against a registered schema and decodes it
// back. The wire format is a canonical CBOR array of field values in schema
// field order; Encode and Decode are exact inverses for every valid value.
type Codec struct {
	enc cbor.EncMode
}

// NewCodec builds a codec with deterministic encoding options.
func NewCodec() (*Codec, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("build cbor enc mode: %w", err)
	}
	return &Codec{enc: enc}, nil
}

// Encode serializes data as the schema's ordered field tuple. Schema fields
// AttestationData does not carry encode as the field type's zero value.
func (c *Codec) Encode(data *AttestationData, def *schema.Definition) ([]byte, error) {
	if data == nil {
		return nil, dErrors.New(dErrors.CodeCreation, "attestation data is required")
	}
	if def == nil || len(def.Fields) == 0 {
		return nil, dErrors.New(dErrors.CodeCreation, "schema definition is required")
	}
	tuple := make([]any, 0, len(def.Fields))
	for _, field := range def.Fields {
		value, err := wireValue(data, field)
		if err != nil {
			return nil, err
		}
		tuple = append(tuple, value)
	}
	encoded, err := c.enc.Marshal(tuple)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCreation, "encode attestation payload")
	}
	return encoded, nil
}

// Decode parses an encoded payload back into AttestationData using the
// schema's field order and types.
func (c *Codec) Decode(encoded []byte, def *schema.Definition) (*AttestationData, error) {
	if def == nil || len(def.Fields) == 0 {
		return nil, dErrors.New(dErrors.CodeVerification, "schema definition is required")
	}
	var tuple []any
	if err := cbor.Unmarshal(encoded, &tuple); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeVerification, "payload is not a CBOR tuple")
	}
	if len(tuple) != len(def.Fields) {
		return nil, dErrors.Newf(dErrors.CodeVerification,
			"payload has %d values but schema %s has %d fields", len(tuple), def.UID, len(def.Fields))
	}
	data := &AttestationData{}
	for i, field := range def.Fields {
		if err := assignField(data, field, tuple[i]); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// wireValue maps one schema field to its encoded representation.
func wireValue(data *AttestationData, field schema.Field) (any, error) {
	switch field.Name {
	case "provider":
		return data.Provider, nil
	case "sessionId":
		return data.SessionID, nil
	case "status":
		return uint64(data.Status), nil
	case "verifiedAt":
		return data.VerifiedAt, nil
	case "confidence":
		return uint64(data.Confidence), nil
	case "subjectHash":
		return hashToBytes(data.SubjectHash)
	case "country":
		return data.CountryCode, nil
	case "documentType":
		return data.DocumentType, nil
	case "documentVerified":
		return data.DocumentVerified, nil
	case "biometricVerified":
		return data.BiometricVerified, nil
	case "livenessVerified":
		return data.LivenessVerified, nil
	case "addressVerified":
		return data.AddressVerified, nil
	case "sanctionsCleared":
		return data.SanctionsCleared, nil
	case "pepCleared":
		return data.PEPCleared, nil
	case "ageVerified":
		return data.AgeVerified, nil
	case "riskLevel":
		return uint64(data.RiskLevel), nil
	case "riskScore":
		return uint64(data.RiskScore), nil
	case "schemaVersion":
		return data.SchemaVersion, nil
	case "apiVersion":
		return data.APIVersion, nil
	case "standard":
		return data.Standard, nil
	}
	// Fields outside the payload encode as the type's zero value.
	return zeroValue(field.Type), nil
}

// assignField writes one decoded wire value into AttestationData.
func assignField(data *AttestationData, field schema.Field, value any) error {
	fail := func() error {
		return dErrors.Newf(dErrors.CodeVerification,
			"field %q carries %T, schema expects %s", field.Name, value, field.Type)
	}
	switch field.Name {
	case "provider":
		s, ok := value.(string)
		if !ok {
			return fail()
		}
		data.Provider = s
	case "sessionId":
		s, ok := value.(string)
		if !ok {
			return fail()
		}
		data.SessionID = s
	case "status":
		n, ok := asUint8(value)
		if !ok {
			return fail()
		}
		data.Status = VerificationStatus(n)
	case "verifiedAt":
		n, ok := value.(uint64)
		if !ok {
			return fail()
		}
		data.VerifiedAt = n
	case "confidence":
		n, ok := asUint8(value)
		if !ok {
			return fail()
		}
		data.Confidence = n
	case "subjectHash":
		b, ok := value.([]byte)
		if !ok || len(b) != 32 {
			return fail()
		}
		data.SubjectHash = "0x" + hex.EncodeToString(b)
	case "country":
		s, ok := value.(string)
		if !ok {
			return fail()
		}
		data.CountryCode = s
	case "documentType":
		s, ok := value.(string)
		if !ok {
			return fail()
		}
		data.DocumentType = s
	case "documentVerified", "biometricVerified", "livenessVerified",
		"addressVerified", "sanctionsCleared", "pepCleared", "ageVerified":
		b, ok := value.(bool)
		if !ok {
			return fail()
		}
		switch field.Name {
		case "documentVerified":
			data.DocumentVerified = b
		case "biometricVerified":
			data.BiometricVerified = b
		case "livenessVerified":
			data.LivenessVerified = b
		case "addressVerified":
			data.AddressVerified = b
		case "sanctionsCleared":
			data.SanctionsCleared = b
		case "pepCleared":
			data.PEPCleared = b
		case "ageVerified":
			data.AgeVerified = b
		}
	case "riskLevel":
		n, ok := asUint8(value)
		if !ok {
			return fail()
		}
		data.RiskLevel = RiskLevel(n)
	case "riskScore":
		n, ok := asUint8(value)
		if !ok {
			return fail()
		}
		data.RiskScore = n
	case "schemaVersion":
		s, ok := value.(string)
		if !ok {
			return fail()
		}
		data.SchemaVersion = s
	case "apiVersion":
		s, ok := value.(string)
		if !ok {
			return fail()
		}
		data.APIVersion = s
	case "standard":
		s, ok := value.(string)
		if !ok {
			return fail()
		}
		data.Standard = s
	default:
		// Unknown fields decoded from extended schemas are dropped.
	}
	return nil
}

func asUint8(value any) (uint8, bool) {
	n, ok := value.(uint64)
	if !ok || n > 255 {
		return 0, false
	}
	return uint8(n), true
}

// hashToBytes converts a 0x-prefixed 32-byte hex hash to its raw bytes. An
// empty hash encodes as the zero array.
func hashToBytes(hash string) ([]byte, error) {
	if hash == "" {
		return make([]byte, 32), nil
	}
	raw, ok := strings.CutPrefix(hash, "0x")
	if !ok {
		return nil, dErrors.New(dErrors.CodeCreation, "subject hash must be 0x-prefixed hex")
	}
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 32 {
		return nil, dErrors.New(dErrors.CodeCreation, "subject hash must be 32 bytes of hex")
	}
	return b, nil
}

// zeroValue returns the wire zero for a field type.
func zeroValue(t schema.FieldType) any {
	switch t.Kind() {
	case schema.KindUint:
		return uint64(0)
	case schema.KindInt:
		return int64(0)
	case schema.KindBool:
		return false
	case schema.KindString, schema.KindAddress:
		return ""
	case schema.KindBytes:
		return []byte{}
	case schema.KindBytes32:
		return make([]byte, 32)
	}
	return nil
}
