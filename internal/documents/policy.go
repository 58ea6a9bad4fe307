package documents

import (
	"strings"

	"knowyourfan-backend/internal/gateway"
)

// DefaultRubric is the instruction sent to the verifier with every AI-verified document.
const DefaultRubric = `You are an identity document verification assistant.
Decide whether the submitted file is a valid, official identity document. Look for:
1. An official header or government emblem.
2. The holder's full name and photo.
3. A document number.
4. An expiration date.
5. Security features such as holograms, watermarks or microprint.
Judge conservatively. If the document is unreadable or does not look official, it is not valid.`

// Policy decides which document types go through the verifier.
type Policy struct {
	aiTypes map[string]struct{}
	Rubric  string
}

// NewPolicy returns a policy that AI-verifies the given types. Empty means identity only.
func NewPolicy(aiTypes []string) Policy {
	set := make(map[string]struct{})
	for _, t := range aiTypes {
		if norm, ok := NormalizeDocumentType(t); ok {
			set[norm] = struct{}{}
		}
	}
	if len(set) == 0 {
		set[TypeIdentity] = struct{}{}
	}
	return Policy{aiTypes: set, Rubric: DefaultRubric}
}

// RequiresAI reports whether docType is verified through the gateway.
func (p Policy) RequiresAI(docType string) bool {
	if p.aiTypes == nil {
		return docType == TypeIdentity
	}
	_, ok := p.aiTypes[docType]
	return ok
}

func (p Policy) rubric() string {
	if strings.TrimSpace(p.Rubric) == "" {
		return DefaultRubric
	}
	return p.Rubric
}

// Classifier turns a verifier verdict into a terminal status.
type Classifier interface {
	Classify(v gateway.Verdict) Status
}

// ThresholdClassifier accepts valid verdicts at or above MinConfidence.
type ThresholdClassifier struct {
	MinConfidence int
}

func (c ThresholdClassifier) Classify(v gateway.Verdict) Status {
	if v.IsValid && v.Confidence >= c.MinConfidence {
		return StatusVerified
	}
	return StatusFailed
}
