package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"casebook/internal/activity"
	"casebook/internal/document/models"
	"casebook/internal/document/store"
	"casebook/internal/platform/metrics"
	dErrors "casebook/pkg/domain-errors"
	"casebook/pkg/platform/sentinel"
	"casebook/pkg/requestcontext"
)

// uploadRetries bounds how often a version-number collision is retried before
// surfacing a conflict to the caller.
const uploadRetries = 1

// OwnerResolver confirms a document owner exists before anything is written
// under its name.
type OwnerResolver interface {
	Resolve(ctx context.Context, owner models.Owner) error
}

// RelationSource reports which cases a party is linked to, so party-document
// events land in the activity trail of every affected case.
type RelationSource interface {
	CasesForParty(ctx context.Context, partyID string) ([]string, error)
}

// ActivityRecorder appends to a case's audit trail. Appends are best-effort
// and must never fail the primary mutation.
type ActivityRecorder interface {
	Record(ctx context.Context, caseID, action, details string)
}

// Service owns document versioning and the verification lifecycle. Versions
// are immutable once inserted; the service only ever moves status, the
// verification fields, and the current flag.
type Service struct {
	docs      store.Store
	tx        store.TxRunner
	resolver  OwnerResolver
	relations RelationSource
	activity  ActivityRecorder
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New constructs the document service. metrics may be nil in tests.
func New(
	docs store.Store,
	tx store.TxRunner,
	resolver OwnerResolver,
	relations RelationSource,
	activity ActivityRecorder,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		docs:      docs,
		tx:        tx,
		resolver:  resolver,
		relations: relations,
		activity:  activity,
		logger:    logger,
		metrics:   m,
	}
}

// UploadRequest carries everything the transport layer extracted from an
// upload call.
type UploadRequest struct {
	Owner        models.Owner
	DocumentType string
	Content      []byte
	Metadata     models.Metadata
	ExpiryDate   *time.Time
	Comments     string
	IsAdHoc      bool
}

// Upload inserts the next version for the (owner, type) tuple. The new
// version starts Submitted and is never current on arrival; promotion is a
// separate, explicit step once the document has been verified.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*models.Document, error) {
	if err := req.Owner.Validate(); err != nil {
		return nil, err
	}
	if req.DocumentType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "document type must not be empty")
	}
	if len(req.Content) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "document content must not be empty")
	}

	if err := s.resolver.Resolve(ctx, req.Owner); err != nil {
		return nil, err
	}

	uploader := requestcontext.ActorOrSystem(ctx)
	now := requestcontext.Now(ctx)

	var doc *models.Document
	attempt := func() error {
		return s.tx.RunInTx(ctx, func(ctx context.Context) error {
			max, err := s.docs.MaxVersion(ctx, req.Owner, req.DocumentType)
			if err != nil {
				return err
			}
			if err := s.docs.ClearCurrent(ctx, req.Owner, req.DocumentType); err != nil {
				return err
			}
			doc = &models.Document{
				Owner:        req.Owner,
				DocumentType: req.DocumentType,
				Version:      max + 1,
				Status:       models.StatusSubmitted,
				IsCurrent:    false,
				IsAdHoc:      req.IsAdHoc,
				UploadedBy:   uploader,
				ExpiryDate:   req.ExpiryDate,
				Comments:     req.Comments,
				Filename:     req.Metadata.Filename,
				MimeType:     req.Metadata.MimeType,
				SizeBytes:    req.Metadata.SizeBytes,
				Content:      req.Content,
				CreatedAt:    now,
			}
			return s.docs.Insert(ctx, doc)
		})
	}

	err := attempt()
	for retries := 0; errors.Is(err, sentinel.ErrConflict) && retries < uploadRetries; retries++ {
		if s.metrics != nil {
			s.metrics.VersionConflicts.Inc()
		}
		s.logger.WarnContext(ctx, "document version collision, retrying",
			"owner_type", string(req.Owner.Type),
			"owner_id", req.Owner.ID,
			"document_type", req.DocumentType,
		)
		err = attempt()
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict,
				fmt.Sprintf("concurrent upload for %s %s %q", req.Owner.Type, req.Owner.ID, req.DocumentType))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "upload document version")
	}

	if s.metrics != nil {
		s.metrics.DocumentsUploaded.WithLabelValues(string(req.Owner.Type)).Inc()
	}
	s.recordForOwner(ctx, req.Owner, activity.ActionDocumentUploaded,
		fmt.Sprintf("Uploaded %q version %d", doc.DocumentType, doc.Version))
	return doc, nil
}

// Verify moves a Submitted document to Verified, stamping the verifier.
// A document may never be verified by its own uploader.
func (s *Service) Verify(ctx context.Context, id int64) (*models.Document, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if doc.Status != models.StatusSubmitted {
		return nil, dErrors.Newf(dErrors.CodeInvalidState,
			"document %d is %s, only Submitted documents can be verified", id, doc.Status)
	}

	verifier := requestcontext.ActorOrSystem(ctx)
	if verifier == doc.UploadedBy {
		return nil, dErrors.Newf(dErrors.CodeSelfVerification,
			"user %q cannot verify document %d because they uploaded it", verifier, id)
	}

	now := requestcontext.Now(ctx)
	doc.Status = models.StatusVerified
	doc.VerifiedBy = verifier
	doc.VerifiedAt = &now
	if err := s.docs.UpdateStatus(ctx, doc); err != nil {
		return nil, s.translate(err, id)
	}

	if s.metrics != nil {
		s.metrics.DocumentsVerified.Inc()
	}
	s.recordForOwner(ctx, doc.Owner, activity.ActionDocumentStatus,
		fmt.Sprintf("Verified %q version %d", doc.DocumentType, doc.Version))
	return doc, nil
}

// Reject moves a Submitted document to Rejected. The reason is mandatory;
// a rejected document is terminal and corrected only by a new upload.
func (s *Service) Reject(ctx context.Context, id int64, reason string) (*models.Document, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidState, "rejection requires a non-empty reason")
	}

	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusSubmitted {
		return nil, dErrors.Newf(dErrors.CodeInvalidState,
			"document %d is %s, only Submitted documents can be rejected", id, doc.Status)
	}

	doc.Status = models.StatusRejected
	doc.RejectionReason = reason
	if err := s.docs.UpdateStatus(ctx, doc); err != nil {
		return nil, s.translate(err, id)
	}

	if s.metrics != nil {
		s.metrics.DocumentsRejected.Inc()
	}
	s.recordForOwner(ctx, doc.Owner, activity.ActionDocumentStatus,
		fmt.Sprintf("Rejected %q version %d: %s", doc.DocumentType, doc.Version, reason))
	return doc, nil
}

// MakeCurrent promotes one version to be the authoritative document for its
// (owner, type) tuple. The clear-then-set pair runs in one transaction so no
// reader ever observes zero or two current versions.
func (s *Service) MakeCurrent(ctx context.Context, id int64) (*models.Document, error) {
	var doc *models.Document
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.load(ctx, id)
		if err != nil {
			return err
		}
		if !doc.EligibleForPromotion() {
			return dErrors.Newf(dErrors.CodeInvalidState,
				"document %d is %s, only Verified documents can be made current", id, doc.Status)
		}
		if err := s.docs.ClearCurrent(ctx, doc.Owner, doc.DocumentType); err != nil {
			return err
		}
		return s.docs.SetCurrent(ctx, id)
	})
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, s.translate(err, id)
	}

	doc.IsCurrent = true
	if s.metrics != nil {
		s.metrics.DocumentsPromoted.Inc()
	}
	s.recordForOwner(ctx, doc.Owner, activity.ActionDocumentMadeCurrent,
		fmt.Sprintf("Made %q version %d current", doc.DocumentType, doc.Version))
	return doc, nil
}

// Versions returns every version for the tuple, newest first.
func (s *Service) Versions(ctx context.Context, owner models.Owner, documentType string) ([]*models.Document, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	docs, err := s.docs.ListVersions(ctx, owner, documentType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list document versions")
	}
	for _, doc := range docs {
		s.applyExpiry(ctx, doc)
	}
	return docs, nil
}

// Current returns the version flagged current for the tuple.
func (s *Service) Current(ctx context.Context, owner models.Owner, documentType string) (*models.Document, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	doc, err := s.docs.CurrentVersion(ctx, owner, documentType)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound,
				"no current version for %s %s %q", owner.Type, owner.ID, documentType)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find current version")
	}
	s.applyExpiry(ctx, doc)
	return doc, nil
}

// ByOwner returns all of an owner's documents across types, newest first
// within each type.
func (s *Service) ByOwner(ctx context.Context, owner models.Owner) ([]*models.Document, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if err := s.resolver.Resolve(ctx, owner); err != nil {
		return nil, err
	}
	docs, err := s.docs.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list documents by owner")
	}
	for _, doc := range docs {
		s.applyExpiry(ctx, doc)
	}
	return docs, nil
}

// DownloadPayload is what the download transport needs to serve file bytes.
type DownloadPayload struct {
	Content  []byte
	MimeType string
	Filename string
}

// Download returns the stored bytes for any version, current or historical.
func (s *Service) Download(ctx context.Context, id int64) (*DownloadPayload, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	filename := doc.Filename
	if filename == "" {
		filename = fmt.Sprintf("%s-v%d", doc.DocumentType, doc.Version)
	}
	return &DownloadPayload{
		Content:  doc.Content,
		MimeType: doc.MimeType,
		Filename: filename,
	}, nil
}

// Summary counts one owner's documents per verification status.
func (s *Service) Summary(ctx context.Context, owner models.Owner) (models.StatusSummary, error) {
	if err := owner.Validate(); err != nil {
		return models.StatusSummary{}, err
	}
	summary, err := s.docs.StatusSummary(ctx, owner)
	if err != nil {
		return models.StatusSummary{}, dErrors.Wrap(err, dErrors.CodeInternal, "document status summary")
	}
	return summary, nil
}

// load fetches a document and lazily applies expiry before any caller
// inspects its status.
func (s *Service) load(ctx context.Context, id int64) (*models.Document, error) {
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, id)
	}
	s.applyExpiry(ctx, doc)
	return doc, nil
}

// applyExpiry flips a past-expiry document to Expired in the returned value
// and persists the flip best-effort. Expiry is a fact about time, so the read
// must reflect it even when the write fails.
func (s *Service) applyExpiry(ctx context.Context, doc *models.Document) {
	if !doc.ExpiredBy(requestcontext.Now(ctx)) {
		return
	}
	doc.Status = models.StatusExpired
	if err := s.docs.UpdateStatus(ctx, doc); err != nil {
		s.logger.WarnContext(ctx, "failed to persist document expiry",
			"document_id", doc.ID,
			"error", err.Error(),
		)
	}
}

func (s *Service) translate(err error, id int64) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "document %d not found", id)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, fmt.Sprintf("document %d concurrently modified", id))
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("document %d", id))
	}
}

// recordForOwner appends audit entries for every case a mutation touches:
// the owning case directly, or every case a party owner is linked to.
func (s *Service) recordForOwner(ctx context.Context, owner models.Owner, action, details string) {
	if owner.Type == models.OwnerTypeCase {
		s.activity.Record(ctx, owner.ID, action, details)
		return
	}
	caseIDs, err := s.relations.CasesForParty(ctx, owner.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to resolve cases for party activity entry",
			"party_id", owner.ID,
			"error", err.Error(),
		)
		return
	}
	details = fmt.Sprintf("%s (party %s)", details, owner.ID)
	for _, caseID := range caseIDs {
		s.activity.Record(ctx, caseID, action, details)
	}
}
