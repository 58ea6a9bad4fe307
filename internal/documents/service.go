package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"knowyourfan-backend/internal/gateway"
	"knowyourfan-backend/internal/shared/metrics"
	"knowyourfan-backend/internal/shared/storage/object"
	"knowyourfan-backend/internal/shared/telemetry"
	"knowyourfan-backend/internal/shared/util"
)

const submitAttempts = 3

// FileLocator confirms that a storage path refers to an uploaded object.
type FileLocator interface {
	Exists(ctx context.Context, storageKey string) (bool, error)
}

// Service runs the document verification lifecycle.
type Service struct {
	Repo     Repo
	Verifier gateway.Verifier
	// Store receives multipart uploads. Optional when files are placed elsewhere.
	Store object.ObjectStore
	// Files, when set, is consulted by Submit before a record is registered.
	Files      FileLocator
	Policy     Policy
	Classifier Classifier
	Logger     telemetry.Logger
	Now        func() time.Time
}

// Transition is the status change made by a verification.
type Transition struct {
	From Status
	To   Status
}

func (t Transition) String() string {
	if t.From == "" && t.To == "" {
		return ""
	}
	return string(t.From) + "->" + string(t.To)
}

// Upload stores the file and registers it as the user's pending document of docType.
func (s *Service) Upload(ctx context.Context, userID, docType, fileName, mimeType string, r io.Reader) (Record, error) {
	userID = strings.TrimSpace(userID)
	docType, ok := NormalizeDocumentType(docType)
	if userID == "" || !ok || strings.TrimSpace(fileName) == "" {
		return Record{}, ErrInvalidInput
	}
	if s.Store == nil {
		return Record{}, errors.New("documents: object store not configured")
	}
	if existing, err := s.Repo.Get(ctx, userID, docType); err == nil && existing.Status == StatusVerifying {
		return Record{}, ErrConflict
	}

	obj, err := s.Store.Save(ctx, userID, fileName, r)
	if err != nil {
		return Record{}, fmt.Errorf("store upload: %w", err)
	}
	if strings.TrimSpace(mimeType) == "" || mimeType == "application/octet-stream" {
		mimeType = obj.MimeType
	}
	rec, err := s.Submit(ctx, userID, docType, FileMeta{
		OriginalName: fileName,
		MimeType:     mimeType,
		SizeBytes:    obj.SizeBytes,
		StoragePath:  obj.Key,
	})
	if err != nil {
		s.discardUpload(ctx, obj.Key)
		return Record{}, err
	}
	return rec, nil
}

// discardUpload removes an object whose record could not be registered.
func (s *Service) discardUpload(ctx context.Context, key string) {
	if err := s.Store.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger().Error("document.upload_cleanup_failed", map[string]any{
			"storage_path": key,
			"error":        err.Error(),
		})
	}
}

// Submit creates or resets the record for (userID, docType) to pending.
func (s *Service) Submit(ctx context.Context, userID, docType string, file FileMeta) (Record, error) {
	userID = strings.TrimSpace(userID)
	docType, ok := NormalizeDocumentType(docType)
	file.OriginalName = strings.TrimSpace(file.OriginalName)
	file.StoragePath = strings.TrimSpace(file.StoragePath)
	file.MimeType = strings.TrimSpace(file.MimeType)
	if userID == "" || !ok || file.OriginalName == "" || file.SizeBytes < 0 {
		return Record{}, ErrInvalidInput
	}
	if file.StoragePath == "" {
		return Record{}, ErrNotFound
	}
	if err := s.checkUpload(ctx, userID, file.StoragePath); err != nil {
		return Record{}, err
	}

	for attempt := 0; attempt < submitAttempts; attempt++ {
		now := s.now()
		existing, err := s.Repo.Get(ctx, userID, docType)
		if errors.Is(err, ErrNotFound) {
			created, err := s.Repo.Create(ctx, Record{
				UserID:       userID,
				DocumentType: docType,
				Status:       StatusPending,
				File:         file,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			if errors.Is(err, ErrStale) {
				continue
			}
			if err != nil {
				return Record{}, err
			}
			s.logTransition(created, Transition{To: StatusPending})
			return created, nil
		}
		if err != nil {
			return Record{}, err
		}
		if existing.Status == StatusVerifying {
			return Record{}, ErrConflict
		}

		next := existing
		next.Status = StatusPending
		next.File = file
		next.Verdict = nil
		next.VerifiedAt = nil
		next.UpdatedAt = now
		saved, err := s.Repo.CompareAndSet(ctx, next, existing.Version)
		if errors.Is(err, ErrStale) {
			continue
		}
		if err != nil {
			return Record{}, err
		}
		s.logTransition(saved, Transition{From: existing.Status, To: StatusPending})
		return saved, nil
	}
	return Record{}, ErrConflict
}

func (s *Service) checkUpload(ctx context.Context, userID, storagePath string) error {
	if s.Files == nil {
		return nil
	}
	if !strings.HasPrefix(storagePath, util.HashUserKey(userID)+"/") {
		return ErrNotFound
	}
	found, err := s.Files.Exists(ctx, storagePath)
	if err != nil {
		s.logger().Error("document.upload_lookup_failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return ErrNotFound
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// Verify runs one verification attempt for the user's document of docType.
func (s *Service) Verify(ctx context.Context, userID, docType string) (Record, error) {
	rec, _, err := s.VerifyTransition(ctx, userID, docType)
	return rec, err
}

// VerifyTransition is Verify that also reports the status change it made.
func (s *Service) VerifyTransition(ctx context.Context, userID, docType string) (Record, Transition, error) {
	userID = strings.TrimSpace(userID)
	docType, ok := NormalizeDocumentType(docType)
	if userID == "" || !ok {
		return Record{}, Transition{}, ErrInvalidInput
	}

	rec, err := s.Repo.Get(ctx, userID, docType)
	if err != nil {
		return Record{}, Transition{}, err
	}
	switch rec.Status {
	case StatusVerifying:
		return Record{}, Transition{}, ErrConflict
	case StatusVerified:
		// Terminal until the document is submitted again.
		return rec, Transition{}, nil
	}

	if !s.Policy.RequiresAI(docType) {
		return s.verifyLegacy(ctx, rec)
	}
	return s.verifyWithGateway(ctx, rec)
}

// verifyLegacy accepts the document without consulting the verifier.
func (s *Service) verifyLegacy(ctx context.Context, rec Record) (Record, Transition, error) {
	now := s.now()
	next := rec
	next.Status = StatusVerified
	next.Verdict = nil
	next.VerifiedAt = &now
	next.UpdatedAt = now

	saved, err := s.Repo.CompareAndSet(ctx, next, rec.Version)
	if errors.Is(err, ErrStale) {
		return Record{}, Transition{}, ErrConflict
	}
	if err != nil {
		return Record{}, Transition{}, err
	}
	metrics.IncVerificationLegacy()
	tr := Transition{From: rec.Status, To: StatusVerified}
	s.logTransition(saved, tr)
	return saved, tr, nil
}

func (s *Service) verifyWithGateway(ctx context.Context, rec Record) (Record, Transition, error) {
	if s.Verifier == nil {
		return Record{}, Transition{}, errors.New("documents: verifier not configured")
	}
	before := rec.clone()

	claim := rec
	claim.UpdatedAt = s.now()
	claim.Status = StatusVerifying
	claimed, err := s.Repo.CompareAndSet(ctx, claim, rec.Version)
	if errors.Is(err, ErrStale) {
		return Record{}, Transition{}, ErrConflict
	}
	if err != nil {
		return Record{}, Transition{}, err
	}
	metrics.IncVerificationStarted()

	start := time.Now()
	verdict, gwErr := s.Verifier.Verify(ctx, gateway.VerificationRequest{
		DocumentName: rec.File.OriginalName,
		MimeType:     rec.File.MimeType,
		Rubric:       s.Policy.rubric(),
	})
	metrics.ObserveVerificationDurationMs(float64(time.Since(start).Microseconds()) / 1000.0)

	if ctxErr := ctx.Err(); ctxErr != nil {
		s.restore(ctx, claimed, before)
		return Record{}, Transition{}, ctxErr
	}

	final := claimed
	if gwErr != nil {
		kind := gateway.Kind(gwErr)
		metrics.IncGatewayError("verifier", kind)
		metrics.IncVerificationUnavailable()
		s.logger().Error("document.verify_gateway_failed", map[string]any{
			"user_id":       rec.UserID,
			"document_type": rec.DocumentType,
			"kind":          kind,
			"error":         gwErr.Error(),
		})
		final.Status = StatusFailed
		final.Verdict = &Verdict{IsValid: false, Confidence: 0, Reason: ReasonUnavailable}
	} else {
		final.Status = s.classifier().Classify(verdict)
		final.Verdict = &Verdict{IsValid: verdict.IsValid, Confidence: verdict.Confidence, Reason: verdict.Reason}
		if final.Status == StatusVerified {
			metrics.IncVerificationVerified()
		} else {
			metrics.IncVerificationFailed()
		}
	}
	now := s.now()
	final.VerifiedAt = &now
	final.UpdatedAt = now

	saved, err := s.Repo.CompareAndSet(ctx, final, claimed.Version)
	if err != nil {
		s.restore(ctx, claimed, before)
		return Record{}, Transition{}, fmt.Errorf("record verification result: %w", err)
	}
	tr := Transition{From: before.Status, To: saved.Status}
	s.logTransition(saved, tr)
	return saved, tr, nil
}

// restore puts back the pre-verification state after an aborted attempt.
// It must run even when the request context is already done.
func (s *Service) restore(ctx context.Context, claimed, before Record) {
	back := before.clone()
	back.UpdatedAt = s.now()
	if _, err := s.Repo.CompareAndSet(context.WithoutCancel(ctx), back, claimed.Version); err != nil {
		s.logger().Error("document.restore_failed", map[string]any{
			"user_id":       before.UserID,
			"document_type": before.DocumentType,
			"error":         err.Error(),
		})
		return
	}
	s.logger().Info("document.verify_aborted", map[string]any{
		"user_id":       before.UserID,
		"document_type": before.DocumentType,
		"status":        string(before.Status),
	})
}

// Get returns the user's record of docType.
func (s *Service) Get(ctx context.Context, userID, docType string) (Record, error) {
	userID = strings.TrimSpace(userID)
	docType, ok := NormalizeDocumentType(docType)
	if userID == "" || !ok {
		return Record{}, ErrInvalidInput
	}
	return s.Repo.Get(ctx, userID, docType)
}

// List returns all of the user's records ordered by document type.
func (s *Service) List(ctx context.Context, userID string) ([]Record, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.ListByUser(ctx, userID)
}

func (s *Service) logTransition(rec Record, tr Transition) {
	fields := map[string]any{
		"user_id":       rec.UserID,
		"document_type": rec.DocumentType,
		"transition":    tr.String(),
		"version":       rec.Version,
	}
	if rec.Verdict != nil {
		fields["confidence"] = rec.Verdict.Confidence
	}
	s.logger().Info("document.transition", fields)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) logger() telemetry.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return telemetry.Default()
}

func (s *Service) classifier() Classifier {
	if s.Classifier != nil {
		return s.Classifier
	}
	return ThresholdClassifier{}
}
