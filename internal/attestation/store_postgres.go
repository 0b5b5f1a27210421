package attestation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"veritas/internal/codec"
	id "veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
)

// PostgresStore persists attestations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed attestation store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is the DDL for the attestations table. Applied by migrations
// in deployment; integration tests apply it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS attestations (
	id             UUID PRIMARY KEY,
	uid            TEXT NOT NULL DEFAULT '',
	schema_uid     TEXT NOT NULL,
	attester       TEXT NOT NULL,
	recipient      TEXT NOT NULL,
	data           JSONB,
	encoded        BYTEA,
	tx_hash        TEXT NOT NULL DEFAULT '',
	block_number   BIGINT NOT NULL DEFAULT 0,
	block_time     TIMESTAMPTZ,
	chain_id       BIGINT NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	revoked        BOOLEAN NOT NULL DEFAULT FALSE,
	revoked_at     TIMESTAMPTZ,
	revoked_reason TEXT NOT NULL DEFAULT '',
	expires_at     TIMESTAMPTZ,
	gas_used       BIGINT NOT NULL DEFAULT 0,
	gas_price      BIGINT NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS attestations_uid_idx ON attestations (uid) WHERE uid <> '';
CREATE INDEX IF NOT EXISTS attestations_recipient_idx ON attestations (recipient, created_at);
`

func (s *PostgresStore) Insert(ctx context.Context, record *Attestation) error {
	dataBytes, err := marshalData(record.Data)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO attestations (
			id, uid, schema_uid, attester, recipient, data, encoded,
			tx_hash, block_number, block_time, chain_id, status,
			revoked, revoked_at, revoked_reason, expires_at,
			gas_used, gas_price, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`
	_, err = s.db.ExecContext(ctx, query,
		record.ID.String(), record.UID.String(), record.SchemaUID.String(),
		record.Attester.String(), record.Recipient.String(), dataBytes, record.Encoded,
		record.TxHash, int64(record.BlockNumber), nullTime(blockTimePtr(record)), record.ChainID,
		string(record.Status), record.Revoked, nullTime(record.RevokedAt), record.RevokedReason,
		nullTime(record.ExpiresAt), int64(record.GasUsed), int64(record.GasPrice),
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attestation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, record *Attestation) error {
	dataBytes, err := marshalData(record.Data)
	if err != nil {
		return err
	}
	query := `
		UPDATE attestations SET
			uid = $2, schema_uid = $3, attester = $4, recipient = $5,
			data = $6, encoded = $7, tx_hash = $8, block_number = $9,
			block_time = $10, chain_id = $11, status = $12, revoked = $13,
			revoked_at = $14, revoked_reason = $15, expires_at = $16,
			gas_used = $17, gas_price = $18, updated_at = $19
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		record.ID.String(), record.UID.String(), record.SchemaUID.String(),
		record.Attester.String(), record.Recipient.String(), dataBytes, record.Encoded,
		record.TxHash, int64(record.BlockNumber), nullTime(blockTimePtr(record)), record.ChainID,
		string(record.Status), record.Revoked, nullTime(record.RevokedAt), record.RevokedReason,
		nullTime(record.ExpiresAt), int64(record.GasUsed), int64(record.GasPrice),
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update attestation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update attestation: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const selectColumns = `
	id, uid, schema_uid, attester, recipient, data, encoded,
	tx_hash, block_number, block_time, chain_id, status,
	revoked, revoked_at, revoked_reason, expires_at,
	gas_used, gas_price, created_at, updated_at
`

func (s *PostgresStore) FindByID(ctx context.Context, attID id.AttestationID) (*Attestation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM attestations WHERE id = $1`, attID.String())
	record, err := scanAttestation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find attestation by id: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindByUID(ctx context.Context, uid id.AttestationUID) (*Attestation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM attestations WHERE uid = $1`, uid.String())
	record, err := scanAttestation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find attestation by uid: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByRecipient(ctx context.Context, recipient id.Address) ([]*Attestation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM attestations WHERE recipient = $1 ORDER BY created_at`,
		recipient.String())
	if err != nil {
		return nil, fmt.Errorf("list attestations: %w", err)
	}
	defer rows.Close()

	var out []*Attestation
	for rows.Next() {
		record, err := scanAttestation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attestation: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attestations: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttestation(row rowScanner) (*Attestation, error) {
	var (
		record                          Attestation
		rawID, rawUID, rawSchema        string
		rawAttester, rawRecipient       string
		dataBytes                       []byte
		status                          string
		blockTime, revokedAt, expiresAt sql.NullTime
		blockNumber, gasUsed, gasPrice  int64
	)
	err := row.Scan(
		&rawID, &rawUID, &rawSchema, &rawAttester, &rawRecipient,
		&dataBytes, &record.Encoded, &record.TxHash, &blockNumber,
		&blockTime, &record.ChainID, &status, &record.Revoked,
		&revokedAt, &record.RevokedReason, &expiresAt,
		&gasUsed, &gasPrice, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.ID, err = id.ParseAttestationID(rawID)
	if err != nil {
		return nil, err
	}
	record.UID = id.AttestationUID(rawUID)
	record.SchemaUID = id.SchemaUID(rawSchema)
	record.Attester = id.Address(rawAttester)
	record.Recipient = id.Address(rawRecipient)
	record.Status = Status(status)
	record.BlockNumber = uint64(blockNumber)
	record.GasUsed = uint64(gasUsed)
	record.GasPrice = uint64(gasPrice)
	if blockTime.Valid {
		record.BlockTime = blockTime.Time
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		record.RevokedAt = &at
	}
	if expiresAt.Valid {
		at := expiresAt.Time
		record.ExpiresAt = &at
	}
	if len(dataBytes) > 0 {
		var data codec.AttestationData
		if err := json.Unmarshal(dataBytes, &data); err != nil {
			return nil, fmt.Errorf("unmarshal attestation data: %w", err)
		}
		record.Data = &data
	}
	return &record, nil
}

func marshalData(data *codec.AttestationData) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal attestation data: %w", err)
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func blockTimePtr(record *Attestation) *time.Time {
	if record.BlockTime.IsZero() {
		return nil
	}
	return &record.BlockTime
}
