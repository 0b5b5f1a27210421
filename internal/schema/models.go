package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	id "veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

// FieldType is a primitive type a schema field may carry.
type FieldType string

const (
	TypeUint8   FieldType = "uint8"
	TypeUint16  FieldType = "uint16"
	TypeUint32  FieldType = "uint32"
	TypeUint64  FieldType = "uint64"
	TypeInt8    FieldType = "int8"
	TypeInt16   FieldType = "int16"
	TypeInt32   FieldType = "int32"
	TypeInt64   FieldType = "int64"
	TypeBool    FieldType = "bool"
	TypeString  FieldType = "string"
	TypeBytes   FieldType = "bytes"
	TypeAddress FieldType = "address"
	TypeBytes32 FieldType = "bytes32"
)

// Kind groups field types by their Go-side representation.
type Kind int

const (
	KindUnknown Kind = iota
	KindUint
	KindInt
	KindBool
	KindString
	KindBytes
	KindAddress
	KindBytes32
)

var fieldKinds = map[FieldType]Kind{
	TypeUint8: KindUint, TypeUint16: KindUint, TypeUint32: KindUint, TypeUint64: KindUint,
	TypeInt8: KindInt, TypeInt16: KindInt, TypeInt32: KindInt, TypeInt64: KindInt,
	TypeBool:    KindBool,
	TypeString:  KindString,
	TypeBytes:   KindBytes,
	TypeAddress: KindAddress,
	TypeBytes32: KindBytes32,
}

// Kind returns the representation group, or KindUnknown for a type outside
// the allowed primitive set.
func (t FieldType) Kind() Kind { return fieldKinds[t] }

// Valid reports whether the type is in the allowed primitive set.
func (t FieldType) Valid() bool { return t.Kind() != KindUnknown }

// Field is one typed slot in a schema's ordered layout.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// Version is a semantic schema version.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// ParseVersion parses "major.minor.patch".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, dErrors.Newf(dErrors.CodeInvalidInput, "version %q is not major.minor.patch", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, dErrors.Newf(dErrors.CodeInvalidInput, "version %q has a non-numeric component", s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Definition is a registered schema. Immutable once registered: any change
// requires a new registration and a compatibility report against the prior
// version.
type Definition struct {
	UID         id.SchemaUID
	Name        string
	Description string
	Version     Version
	Fields      []Field
	Revocable   bool
	Registrant  id.Address
	TxHash      string
	CreatedAt   time.Time
	// Raw is the original field-schema string as registered.
	Raw string
}

// FieldByName returns the named field and whether it exists.
func (d *Definition) FieldByName(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ValidationReport is the outcome of structural schema validation.
// Warnings are advisory and never block.
type ValidationReport struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// CompatibilityReport diffs two schema versions by field name. A removed
// required field or a type change on a shared field is breaking.
type CompatibilityReport struct {
	Compatible bool
	Breaking   bool
	Added      []string
	Removed    []string
	Modified   []string
}
