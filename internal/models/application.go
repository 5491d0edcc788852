// internal/models/application.go
package models

import (
	"fmt"
	"sort"
	"time"
)

// Status is the lifecycle state of an application.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusAccepted   Status = "accepted"
	StatusWaitlisted Status = "waitlisted"
	StatusConfirmed  Status = "confirmed"
)

// AllStatuses lists every known status in lifecycle order.
var AllStatuses = []Status{
	StatusNotStarted,
	StatusInProgress,
	StatusSubmitted,
	StatusAccepted,
	StatusWaitlisted,
	StatusConfirmed,
}

func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

// Fields maps a field name to a scalar value: string, bool or nil.
type Fields map[string]any

// Application is the single record held per owner.
type Application struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Fields       Fields    `json:"fields"`
	Status       Status    `json:"status"`
	ConsentGiven bool      `json:"consentGiven"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate fields freely.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	out := *a
	out.Fields = a.Fields.Clone()
	return &out
}

func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithoutNulls drops nil values. A nil in a partial write means "keep the
// stored value", so nils never travel to the store.
func (f Fields) WithoutNulls() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// NormalizeFields checks that every value is a scalar the store accepts.
func NormalizeFields(in map[string]any) (Fields, error) {
	out := make(Fields, len(in))
	for k, v := range in {
		if k == "" {
			return nil, fmt.Errorf("field name must not be empty")
		}
		switch v.(type) {
		case string, bool, nil:
			out[k] = v
		default:
			return nil, fmt.Errorf("field %q: unsupported value type %T", k, v)
		}
	}
	return out, nil
}
