package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"veritas/internal/audit"
	"veritas/internal/ledger"
	id "veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	"veritas/pkg/requestcontext"
)

// Ledger is the slice of the gateway the schema client needs.
type Ledger interface {
	Submit(ctx context.Context, intent ledger.Intent) (*ledger.Receipt, error)
	ExtractEmittedSchemaID(receipt *ledger.Receipt) (id.SchemaUID, error)
	ReadSchema(ctx context.Context, uid id.SchemaUID) ([]byte, error)
}

// Service manages schema lifecycle against the external registry:
// registration, fetch, structural validation, and version compatibility.
type Service struct {
	ledger  Ledger
	cache   *cache
	logger  *slog.Logger
	auditor *audit.Publisher
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditPublisher records registrations on the audit trail.
func WithAuditPublisher(publisher *audit.Publisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

// WithCacheTTL enables the time-boxed definition cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cache = newCache(ttl)
		}
	}
}

// New constructs the schema registry client.
func New(l Ledger, opts ...Option) (*Service, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger gateway is required")
	}
	s := &Service{ledger: l}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// registrationPayload is the recoverable metadata stored in the registry
// alongside the raw field string.
type registrationPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	CreatedAt   int64  `json:"created_at"`
	Revocable   bool   `json:"revocable"`
	Schema      string `json:"schema"`
}

// Register validates and registers a new schema, returning the UID the
// registry assigned in its emitted event.
func (s *Service) Register(ctx context.Context, name, description, fieldSchema, version string, revocable bool) (id.SchemaUID, error) {
	if name == "" {
		return "", dErrors.New(dErrors.CodeSchema, "schema name is required")
	}
	if _, err := ParseFields(fieldSchema); err != nil {
		return "", err
	}
	ver, err := ParseVersion(version)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSchema, "invalid schema version")
	}

	now := requestcontext.Now(ctx)
	payload, err := json.Marshal(registrationPayload{
		Name:        name,
		Description: description,
		Version:     ver.String(),
		CreatedAt:   now.Unix(),
		Revocable:   revocable,
		Schema:      fieldSchema,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSchema, "encode registration payload")
	}

	receipt, err := s.ledger.Submit(ctx, ledger.Intent{
		Kind:  ledger.KindRegisterSchema,
		Items: []ledger.Item{{Data: payload, Revocable: revocable}},
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSchema, "schema registration transaction failed")
	}
	uid, err := s.ledger.ExtractEmittedSchemaID(receipt)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSchema, "registration succeeded but no schema id was emitted")
	}

	registrations.Inc()
	if s.auditor != nil {
		s.auditor.Emit(ctx, audit.Event{
			Action:    audit.ActionSchemaRegistered,
			SchemaUID: uid.String(),
			TxHash:    receipt.TxHash,
			Outcome:   "registered",
			Details:   map[string]string{"name": name, "version": ver.String()},
		})
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "schema registered",
			"schema_uid", uid, "name", name, "version", ver.String(),
			"request_id", requestcontext.RequestID(ctx))
	}
	def, err := s.decode(uid, receipt.TxHash, payload)
	if err != nil {
		return "", err
	}
	s.cache.put(uid.String(), def, now)
	return uid, nil
}

// Get returns the schema definition, consulting the time-boxed cache first.
func (s *Service) Get(ctx context.Context, uid id.SchemaUID) (*Definition, error) {
	now := requestcontext.Now(ctx)
	if def, ok := s.cache.get(uid.String(), now); ok && def != nil {
		cacheLookups.WithLabelValues("hit").Inc()
		return def, nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	raw, err := s.ledger.ReadSchema(ctx, uid)
	if err != nil {
		return nil, err
	}
	def, err := s.decode(uid, "", raw)
	if err != nil {
		return nil, err
	}
	s.cache.put(uid.String(), def, now)
	return def, nil
}

// decode parses a stored registration payload back into a Definition.
func (s *Service) decode(uid id.SchemaUID, txHash string, raw []byte) (*Definition, error) {
	var payload registrationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSchema, "stored schema payload is malformed")
	}
	fields, err := ParseFields(payload.Schema)
	if err != nil {
		return nil, err
	}
	ver, err := ParseVersion(payload.Version)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSchema, "stored schema version is malformed")
	}
	return &Definition{
		UID:         uid,
		Name:        payload.Name,
		Description: payload.Description,
		Version:     ver,
		Fields:      fields,
		Revocable:   payload.Revocable,
		TxHash:      txHash,
		CreatedAt:   time.Unix(payload.CreatedAt, 0).UTC(),
		Raw:         payload.Schema,
	}, nil
}

// Validate runs structural checks against a registered schema. Errors make
// the schema invalid; warnings are advisory.
func (s *Service) Validate(ctx context.Context, uid id.SchemaUID) (*ValidationReport, error) {
	def, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{Valid: true}
	fail := func(format string, args ...any) {
		report.Valid = false
		report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
	}

	if def.Name == "" {
		fail("schema has no name")
	}
	if len(def.Fields) == 0 {
		fail("schema has no fields")
	}
	seen := make(map[string]struct{}, len(def.Fields))
	for _, f := range def.Fields {
		if !f.Type.Valid() {
			fail("field %q has type %q outside the allowed set", f.Name, f.Type)
		}
		if !identifierPattern.MatchString(f.Name) {
			fail("field name %q is not a valid identifier", f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			fail("field name %q is duplicated", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	if def.Description == "" {
		report.Warnings = append(report.Warnings, "schema has no description")
	}
	return report, nil
}

// CheckCompatibility diffs source against target by field name. Removing a
// required field or changing the type of a shared field is breaking.
func (s *Service) CheckCompatibility(ctx context.Context, sourceUID, targetUID id.SchemaUID) (*CompatibilityReport, error) {
	source, err := s.Get(ctx, sourceUID)
	if err != nil {
		return nil, err
	}
	target, err := s.Get(ctx, targetUID)
	if err != nil {
		return nil, err
	}

	report := &CompatibilityReport{Compatible: true}
	for _, tf := range target.Fields {
		sf, shared := source.FieldByName(tf.Name)
		if !shared {
			report.Added = append(report.Added, tf.Name)
			continue
		}
		if sf.Type != tf.Type {
			report.Modified = append(report.Modified, tf.Name)
			report.Breaking = true
		}
	}
	for _, sf := range source.Fields {
		if _, shared := target.FieldByName(sf.Name); !shared {
			report.Removed = append(report.Removed, sf.Name)
			if sf.Required {
				report.Breaking = true
			}
		}
	}
	if report.Breaking {
		report.Compatible = false
	}
	return report, nil
}
