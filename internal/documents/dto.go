package documents

import "time"

type FileResponse struct {
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	SizeBytes    int64  `json:"sizeBytes"`
	StoragePath  string `json:"storagePath"`
}

type VerdictResponse struct {
	IsValid    bool   `json:"isValid"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

// RecordResponse is the outward-facing representation of a record.
type RecordResponse struct {
	DocumentType string           `json:"documentType"`
	Status       Status           `json:"status"`
	File         FileResponse     `json:"file"`
	Verdict      *VerdictResponse `json:"verdict,omitempty"`
	VerifiedAt   *time.Time       `json:"verifiedAt,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// VerifyResponse is returned by the verify endpoint.
type VerifyResponse struct {
	Status     Status           `json:"status"`
	Verdict    *VerdictResponse `json:"verdict,omitempty"`
	VerifiedAt *time.Time       `json:"verifiedAt,omitempty"`
}

type submitRequest struct {
	StoragePath  string `json:"storagePath"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	SizeBytes    int64  `json:"sizeBytes"`
}

func toVerdictResponse(v *Verdict) *VerdictResponse {
	if v == nil {
		return nil
	}
	return &VerdictResponse{IsValid: v.IsValid, Confidence: v.Confidence, Reason: v.Reason}
}

func toResponse(rec Record) RecordResponse {
	return RecordResponse{
		DocumentType: rec.DocumentType,
		Status:       rec.Status,
		File: FileResponse{
			OriginalName: rec.File.OriginalName,
			MimeType:     rec.File.MimeType,
			SizeBytes:    rec.File.SizeBytes,
			StoragePath:  rec.File.StoragePath,
		},
		Verdict:    toVerdictResponse(rec.Verdict),
		VerifiedAt: rec.VerifiedAt,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

func toVerifyResponse(rec Record) VerifyResponse {
	return VerifyResponse{
		Status:     rec.Status,
		Verdict:    toVerdictResponse(rec.Verdict),
		VerifiedAt: rec.VerifiedAt,
	}
}
