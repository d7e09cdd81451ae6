package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/lvillar/letterpdf/config"
	"github.com/lvillar/letterpdf/model"
)

// Postgres reads letters from the hosted database.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects with the lib/pq driver and pings the server.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close closes the database handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}

const letterQuery = `
	SELECT l.id, l.number, l.year,
		COALESCE(l.letter_reference, ''), COALESCE(b.code, ''),
		l.content, COALESCE(l.verification_url, ''), COALESCE(l.signature_id::text, ''),
		l.workflow_status, COALESCE(u.full_name, ''), l.updated_at,
		l.template_snapshot,
		t.id, t.name, t.image_url, t.letter_elements, t.qr_position
	FROM letters l
	LEFT JOIN branches b ON b.id = l.branch_id
	LEFT JOIN users u ON u.id = l.user_id
	LEFT JOIN letter_templates t ON t.id = l.template_id
	WHERE l.id = $1
`

// GetLetter implements Letters.
func (p *Postgres) GetLetter(ctx context.Context, id string) (*model.Letter, error) {
	var (
		l                        model.Letter
		status                   string
		content, snapshot        []byte
		tplID, tplName, tplImage sql.NullString
		tplElements, tplQR       []byte
	)
	err := p.db.QueryRowContext(ctx, letterQuery, id).Scan(
		&l.ID, &l.Number, &l.Year,
		&l.LetterReference, &l.BranchCode,
		&content, &l.VerificationURL, &l.SignatureID,
		&status, &l.CreatorName, &l.UpdatedAt,
		&snapshot,
		&tplID, &tplName, &tplImage, &tplElements, &tplQR,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: loading letter %s: %w", id, err)
	}
	l.WorkflowStatus = model.WorkflowStatus(status)

	if err := decodeJSON(content, &l.Content); err != nil {
		return nil, fmt.Errorf("store: letter %s content: %w", id, err)
	}
	if len(snapshot) > 0 && string(snapshot) != "null" {
		l.TemplateSnapshot = &model.Template{}
		if err := json.Unmarshal(snapshot, l.TemplateSnapshot); err != nil {
			return nil, fmt.Errorf("store: letter %s template snapshot: %w", id, err)
		}
	}
	if tplID.Valid {
		t := &model.Template{ID: tplID.String, Name: tplName.String, ImageURL: tplImage.String}
		if err := decodeJSON(tplElements, &t.LetterElements); err != nil {
			return nil, fmt.Errorf("store: template %s elements: %w", t.ID, err)
		}
		if err := decodeJSON(tplQR, &t.QRPosition); err != nil {
			return nil, fmt.Errorf("store: template %s qr position: %w", t.ID, err)
		}
		l.Template = t
	}
	return &l, nil
}

const signatureQuery = `SELECT id, COALESCE(signature_url, '') FROM signatures WHERE id = $1`

// GetSignature implements Signatures. A row without a URL is reported as
// no signature.
func (p *Postgres) GetSignature(ctx context.Context, id string) (*model.Signature, error) {
	var s model.Signature
	err := p.db.QueryRowContext(ctx, signatureQuery, id).Scan(&s.ID, &s.SignatureURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: loading signature %s: %w", id, err)
	}
	if s.SignatureURL == "" {
		return nil, nil
	}
	return &s, nil
}

// decodeJSON unmarshals a nullable JSONB column; NULL leaves v untouched.
func decodeJSON(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}
