// internal/workers/review/record-decision/models.go
package recorddecision

// Input carries the reviewer's outcome for one applicant.
type Input struct {
	OwnerID  string `json:"ownerId"`
	Decision string `json:"decision"` // accepted | waitlisted
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	DecidedAt         string `json:"decidedAt"` // ISO 8601
}
