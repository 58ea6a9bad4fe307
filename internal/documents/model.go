package documents

import (
	"regexp"
	"strings"
	"time"
)

// Status is a document's position in the verification lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusVerifying Status = "verifying"
	StatusVerified  Status = "verified"
	StatusFailed    Status = "failed"
)

// Known document types. Any slug matching documentTypePattern is accepted.
const (
	TypeIdentity = "identity"
	TypeAddress  = "address"
)

// ReasonUnavailable is the verdict reason recorded when the verifier could not answer.
const ReasonUnavailable = "verification_unavailable"

var documentTypePattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// FileMeta describes the uploaded file. The core only forwards it.
type FileMeta struct {
	OriginalName string
	MimeType     string
	SizeBytes    int64
	StoragePath  string
}

type Verdict struct {
	IsValid    bool
	Confidence int
	Reason     string
}

// Record is the single document of one type owned by one user.
type Record struct {
	UserID       string
	DocumentType string
	Status       Status
	File         FileMeta
	Verdict      *Verdict
	VerifiedAt   *time.Time
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r Record) clone() Record {
	out := r
	if r.Verdict != nil {
		v := *r.Verdict
		out.Verdict = &v
	}
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		out.VerifiedAt = &t
	}
	return out
}

// NormalizeDocumentType lower-cases and trims a type, reporting whether it is acceptable.
func NormalizeDocumentType(docType string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(docType))
	return t, documentTypePattern.MatchString(t)
}
