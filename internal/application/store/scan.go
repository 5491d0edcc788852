package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"applicant-portal/internal/models"
)

const columns = "id, owner_id, fields, status, consent_given, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app    models.Application
		status string
	)
	err := row.Scan(
		&app.ID,
		&app.OwnerID,
		fieldsValue{&app.Fields},
		&status,
		&app.ConsentGiven,
		timeValue{&app.CreatedAt},
		timeValue{&app.UpdatedAt},
	)
	if err != nil {
		return nil, err
	}
	app.Status = models.Status(status)
	return &app, nil
}

// fieldsValue decodes a JSONB or JSON-text column.
type fieldsValue struct {
	dst *models.Fields
}

func (v fieldsValue) Scan(src any) error {
	var raw []byte
	switch s := src.(type) {
	case nil:
		*v.dst = models.Fields{}
		return nil
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		return fmt.Errorf("fields: unsupported column type %T", src)
	}

	out := models.Fields{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	*v.dst = out
	return nil
}

var sqliteTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// timeValue accepts native timestamps and the text form sqlite stores.
type timeValue struct {
	dst *time.Time
}

func (v timeValue) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		*v.dst = time.Time{}
		return nil
	case time.Time:
		*v.dst = s.UTC()
		return nil
	case []byte:
		return v.parse(string(s))
	case string:
		return v.parse(s)
	default:
		return fmt.Errorf("timestamp: unsupported column type %T", src)
	}
}

func (v timeValue) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*v.dst = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: cannot parse %q", s)
}
