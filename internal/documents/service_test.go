package documents

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowyourfan-backend/internal/gateway"
	localstore "knowyourfan-backend/internal/shared/storage/object/local"
	"knowyourfan-backend/internal/shared/telemetry"
	"knowyourfan-backend/internal/shared/util"
)

type fakeVerifier struct {
	calls   atomic.Int32
	verdict gateway.Verdict
	err     error
	// entered is signalled when a call starts; release unblocks it. Both optional.
	entered chan struct{}
	release chan struct{}
	onCall  func()
	lastReq gateway.VerificationRequest
	mu      sync.Mutex
}

func (f *fakeVerifier) Verify(ctx context.Context, req gateway.VerificationRequest) (gateway.Verdict, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.onCall != nil {
		f.onCall()
	}
	return f.verdict, f.err
}

var fixedNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestService(v gateway.Verifier) *Service {
	return &Service{
		Repo:     NewMemoryRepo(),
		Verifier: v,
		Policy:   NewPolicy([]string{TypeIdentity}),
		Logger:   telemetry.Nop{},
		Now:      func() time.Time { return fixedNow },
	}
}

func submitID(t *testing.T, svc *Service, user string) Record {
	t.Helper()
	rec, err := svc.Submit(context.Background(), user, TypeIdentity, FileMeta{
		OriginalName: "id.png",
		MimeType:     "image/png",
		SizeBytes:    2048,
		StoragePath:  util.HashUserKey(user) + "/abc_id.png",
	})
	require.NoError(t, err)
	return rec
}

func TestVerifyValidDocumentBecomesVerified(t *testing.T) {
	fake := &fakeVerifier{verdict: gateway.Verdict{IsValid: true, Confidence: 95, Reason: "ok"}}
	svc := newTestService(fake)
	submitID(t, svc, "u1")

	rec, err := svc.Verify(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, rec.Status)
	require.NotNil(t, rec.Verdict)
	assert.Equal(t, 95, rec.Verdict.Confidence)
	assert.Equal(t, "ok", rec.Verdict.Reason)
	require.NotNil(t, rec.VerifiedAt)
	assert.Equal(t, fixedNow, *rec.VerifiedAt)

	assert.Equal(t, "id.png", fake.lastReq.DocumentName)
	assert.Equal(t, "image/png", fake.lastReq.MimeType)
	assert.Equal(t, DefaultRubric, fake.lastReq.Rubric)

	stored, err := svc.Get(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, stored.Status)
}

func TestVerifyInvalidDocumentBecomesFailedWithTimestamp(t *testing.T) {
	fake := &fakeVerifier{verdict: gateway.Verdict{IsValid: false, Confidence: 30, Reason: "no emblem"}}
	svc := newTestService(fake)
	submitID(t, svc, "u1")

	rec, err := svc.Verify(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	require.NotNil(t, rec.VerifiedAt)
	assert.Equal(t, "no emblem", rec.Verdict.Reason)
}

func TestVerifyGatewayErrorsBecomeUnavailableFailure(t *testing.T) {
	for _, gwErr := range []error{
		fmt.Errorf("verify: %w", gateway.ErrTimeout),
		fmt.Errorf("verify: %w", gateway.ErrAuth),
		fmt.Errorf("verify: %w", gateway.ErrUpstream),
		fmt.Errorf("verify: %w", gateway.ErrMalformed),
	} {
		t.Run(gateway.Kind(gwErr), func(t *testing.T) {
			svc := newTestService(&fakeVerifier{err: gwErr})
			submitID(t, svc, "u1")

			rec, err := svc.Verify(context.Background(), "u1", TypeIdentity)
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, rec.Status)
			require.NotNil(t, rec.Verdict)
			assert.Equal(t, ReasonUnavailable, rec.Verdict.Reason)
			assert.Equal(t, 0, rec.Verdict.Confidence)
			assert.NotNil(t, rec.VerifiedAt)
		})
	}
}

func TestVerifyWithoutUploadIsNotFound(t *testing.T) {
	fake := &fakeVerifier{}
	svc := newTestService(fake)

	_, err := svc.Verify(context.Background(), "u1", TypeIdentity)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(0), fake.calls.Load())
}

func TestFailedDocumentCanBeVerifiedAgain(t *testing.T) {
	fake := &fakeVerifier{verdict: gateway.Verdict{IsValid: false, Confidence: 10, Reason: "blurry"}}
	svc := newTestService(fake)
	submitID(t, svc, "u1")

	rec, err := svc.Verify(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, rec.Status)

	fake.verdict = gateway.Verdict{IsValid: true, Confidence: 90, Reason: "clear"}
	rec, err = svc.Verify(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, rec.Status)
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestVerifiedDocumentIsTerminalUntilResubmitted(t *testing.T) {
	fake := &fakeVerifier{verdict: gateway.Verdict{IsValid: true, Confidence: 95, Reason: "ok"}}
	svc := newTestService(fake)
	submitID(t, svc, "u1")

	first, err := svc.Verify(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)
	require.Equal(t, StatusVerified, first.Status)

	fake.verdict = gateway.Verdict{IsValid: false, Confidence: 5, Reason: "forged"}
	again, tr, err := svc.VerifyTransition(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, again.Status)
	assert.Equal(t, first.Version, again.Version)
	require.NotNil(t, again.Verdict)
	assert.Equal(t, "ok", again.Verdict.Reason)
	assert.Equal(t, "", tr.String())
	assert.Equal(t, int32(1), fake.calls.Load())

	submitID(t, svc, "u1")
	rec, err := svc.Verify(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestLegacyVerifiedDocumentIsTerminal(t *testing.T) {
	svc := newTestService(&fakeVerifier{})
	_, err := svc.Submit(context.Background(), "u1", TypeAddress, FileMeta{
		OriginalName: "bill.pdf",
		StoragePath:  "k/bill.pdf",
	})
	require.NoError(t, err)

	first, err := svc.Verify(context.Background(), "u1", TypeAddress)
	require.NoError(t, err)
	again, tr, err := svc.VerifyTransition(context.Background(), "u1", TypeAddress)
	require.NoError(t, err)
	assert.Equal(t, first.Version, again.Version)
	assert.Equal(t, StatusVerified, again.Status)
	assert.Equal(t, "", tr.String())
}

func TestVerifyWhileVerifyingConflictsWithoutSecondCall(t *testing.T) {
	fake := &fakeVerifier{
		verdict: gateway.Verdict{IsValid: true, Confidence: 80, Reason: "ok"},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc := newTestService(fake)
	submitID(t, svc, "u1")

	done := make(chan error, 1)
	go func() {
		_, err := svc.Verify(context.Background(), "u1", TypeIdentity)
		done <- err
	}()
	<-fake.entered

	current, err := svc.Get(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)
	assert.Equal(t, StatusVerifying, current.Status)

	_, err = svc.Verify(context.Background(), "u1", TypeIdentity)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.Submit(context.Background(), "u1", TypeIdentity, FileMeta{
		OriginalName: "other.png",
		StoragePath:  "x/other.png",
	})
	assert.ErrorIs(t, err, ErrConflict)

	close(fake.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestConcurrentVerifyCallsGatewayOnce(t *testing.T) {
	fake := &fakeVerifier{
		verdict: gateway.Verdict{IsValid: true, Confidence: 99, Reason: "ok"},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc := newTestService(fake)
	submitID(t, svc, "u1")

	const callers = 10
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := svc.Verify(context.Background(), "u1", TypeIdentity)
			results <- err
		}()
	}

	<-fake.entered
	for i := 0; i < callers-1; i++ {
		assert.ErrorIs(t, <-results, ErrConflict)
	}
	close(fake.release)
	assert.NoError(t, <-results)
	assert.Equal(t, int32(1), fake.calls.Load())

	rec, err := svc.Get(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, rec.Status)
}

func TestCancelledVerifyRestoresPriorState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := &fakeVerifier{
		verdict: gateway.Verdict{IsValid: true, Confidence: 99, Reason: "ok"},
		onCall:  cancel,
	}
	svc := newTestService(fake)
	submitID(t, svc, "u1")

	_, err := svc.Verify(ctx, "u1", TypeIdentity)
	assert.ErrorIs(t, err, context.Canceled)

	rec, err := svc.Get(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Nil(t, rec.Verdict)
	assert.Nil(t, rec.VerifiedAt)
}

func TestCancelledReverifyRestoresFailedVerdict(t *testing.T) {
	fake := &fakeVerifier{verdict: gateway.Verdict{IsValid: false, Confidence: 20, Reason: "blurry"}}
	svc := newTestService(fake)
	submitID(t, svc, "u1")
	_, err := svc.Verify(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	fake.onCall = cancel
	_, err = svc.Verify(ctx, "u1", TypeIdentity)
	require.ErrorIs(t, err, context.Canceled)

	rec, err := svc.Get(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	require.NotNil(t, rec.Verdict)
	assert.Equal(t, "blurry", rec.Verdict.Reason)
	assert.NotNil(t, rec.VerifiedAt)
}

func TestLegacyTypeSkipsGateway(t *testing.T) {
	fake := &fakeVerifier{}
	svc := newTestService(fake)
	_, err := svc.Submit(context.Background(), "u1", TypeAddress, FileMeta{
		OriginalName: "bill.pdf",
		MimeType:     "application/pdf",
		StoragePath:  "k/bill.pdf",
	})
	require.NoError(t, err)

	rec, tr, err := svc.VerifyTransition(context.Background(), "u1", TypeAddress)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, rec.Status)
	assert.Nil(t, rec.Verdict)
	assert.NotNil(t, rec.VerifiedAt)
	assert.Equal(t, "pending->verified", tr.String())
	assert.Equal(t, int32(0), fake.calls.Load())
}

func TestThresholdClassifierRejectsLowConfidence(t *testing.T) {
	fake := &fakeVerifier{verdict: gateway.Verdict{IsValid: true, Confidence: 60, Reason: "maybe"}}
	svc := newTestService(fake)
	svc.Classifier = ThresholdClassifier{MinConfidence: 80}
	submitID(t, svc, "u1")

	rec, err := svc.Verify(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, 60, rec.Verdict.Confidence)
}

func TestSubmitValidation(t *testing.T) {
	svc := newTestService(&fakeVerifier{})
	ctx := context.Background()

	_, err := svc.Submit(ctx, "", TypeIdentity, FileMeta{OriginalName: "a.png", StoragePath: "k"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Submit(ctx, "u1", "Not A Type!", FileMeta{OriginalName: "a.png", StoragePath: "k"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Submit(ctx, "u1", TypeIdentity, FileMeta{StoragePath: "k"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Submit(ctx, "u1", TypeIdentity, FileMeta{OriginalName: "a.png"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResubmitResetsFailedRecordToPending(t *testing.T) {
	fake := &fakeVerifier{verdict: gateway.Verdict{IsValid: false, Confidence: 5, Reason: "bad"}}
	svc := newTestService(fake)
	first := submitID(t, svc, "u1")
	_, err := svc.Verify(context.Background(), "u1", TypeIdentity)
	require.NoError(t, err)

	rec := submitID(t, svc, "u1")
	assert.Equal(t, StatusPending, rec.Status)
	assert.Nil(t, rec.Verdict)
	assert.Nil(t, rec.VerifiedAt)
	assert.Greater(t, rec.Version, first.Version)
}

type stubLocator struct {
	found bool
	err   error
}

func (s stubLocator) Exists(ctx context.Context, key string) (bool, error) {
	return s.found, s.err
}

func TestSubmitRequiresLocatedUpload(t *testing.T) {
	svc := newTestService(&fakeVerifier{})
	ctx := context.Background()
	owned := util.HashUserKey("u1") + "/abc_id.png"
	meta := FileMeta{OriginalName: "id.png", StoragePath: owned}

	svc.Files = stubLocator{found: false}
	_, err := svc.Submit(ctx, "u1", TypeIdentity, meta)
	assert.ErrorIs(t, err, ErrNotFound)

	svc.Files = stubLocator{err: errors.New("s3 down")}
	_, err = svc.Submit(ctx, "u1", TypeIdentity, meta)
	assert.ErrorIs(t, err, ErrNotFound)

	svc.Files = stubLocator{found: true}
	_, err = svc.Submit(ctx, "u1", TypeIdentity, FileMeta{OriginalName: "id.png", StoragePath: util.HashUserKey("u2") + "/x.png"})
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err := svc.Submit(ctx, "u1", TypeIdentity, meta)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
}

func TestListReturnsUserRecordsOnly(t *testing.T) {
	svc := newTestService(&fakeVerifier{})
	submitID(t, svc, "u1")
	submitID(t, svc, "u2")
	_, err := svc.Submit(context.Background(), "u1", TypeAddress, FileMeta{OriginalName: "bill.pdf", StoragePath: "k/bill.pdf"})
	require.NoError(t, err)

	recs, err := svc.List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, TypeAddress, recs[0].DocumentType)
	assert.Equal(t, TypeIdentity, recs[1].DocumentType)
}

func TestPolicyDefaultsToIdentity(t *testing.T) {
	p := NewPolicy(nil)
	assert.True(t, p.RequiresAI(TypeIdentity))
	assert.False(t, p.RequiresAI(TypeAddress))

	p = NewPolicy([]string{" Identity ", "passport"})
	assert.True(t, p.RequiresAI("passport"))
	assert.True(t, p.RequiresAI(TypeIdentity))
}

type failingCreateRepo struct {
	*MemoryRepo
	err error
}

func (r failingCreateRepo) Create(ctx context.Context, rec Record) (Record, error) {
	return Record{}, r.err
}

func TestUploadRemovesObjectWhenRegistrationFails(t *testing.T) {
	dir := t.TempDir()
	store := localstore.New(dir)
	svc := newTestService(&fakeVerifier{})
	svc.Repo = failingCreateRepo{MemoryRepo: NewMemoryRepo(), err: errors.New("db down")}
	svc.Store = store
	svc.Files = store

	_, err := svc.Upload(context.Background(), "u1", TypeIdentity, "id.png", "image/png", strings.NewReader("\x89PNG\r\n\x1a\npixels"))
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, util.HashUserKey("u1")))
	if err == nil {
		assert.Empty(t, entries)
	} else {
		assert.True(t, errors.Is(err, fs.ErrNotExist))
	}
}

func TestUploadKeepsObjectOnSuccess(t *testing.T) {
	store := localstore.New(t.TempDir())
	svc := newTestService(&fakeVerifier{})
	svc.Store = store
	svc.Files = store

	rec, err := svc.Upload(context.Background(), "u1", TypeIdentity, "id.png", "", strings.NewReader("\x89PNG\r\n\x1a\npixels"))
	require.NoError(t, err)
	ok, err := store.Exists(context.Background(), rec.File.StoragePath)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "image/png", rec.File.MimeType)
}
