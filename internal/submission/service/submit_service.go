package service

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"time"

	"github.com/rishvic/jumpcoder/internal/common/db"
	"github.com/rishvic/jumpcoder/internal/common/mq"
	"github.com/rishvic/jumpcoder/internal/common/storage"
	problemRepo "github.com/rishvic/jumpcoder/internal/problem/repository"
	"github.com/rishvic/jumpcoder/internal/submission/form"
	"github.com/rishvic/jumpcoder/internal/submission/repository"
	"github.com/rishvic/jumpcoder/internal/submission/schema"
	appErr "github.com/rishvic/jumpcoder/pkg/errors"
	"github.com/rishvic/jumpcoder/pkg/utils/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// codeFieldName is the multipart field expected to carry the source file.
const codeFieldName = "code"

// TimeoutConfig bounds external calls made during one ingestion attempt.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Storage time.Duration `yaml:"storage"`
}

// Config holds submit service dependencies and settings.
type Config struct {
	ProblemRepo    problemRepo.ProblemRepository
	SubmissionRepo repository.SubmissionRepository
	Tx             db.TxRunner
	Storage        storage.ObjectStorage

	// Notifier, when set, receives a submission-accepted event after commit.
	Notifier mq.Publisher

	CodeBucket   string
	MaxFileBytes int64
	Timeouts     TimeoutConfig
}

// SubmitService coordinates the submission ingestion saga: stream
// demultiplexing, validation, and the deduplicated metadata write with
// compensating blob cleanup on every non-committed outcome.
type SubmitService struct {
	problemRepo    problemRepo.ProblemRepository
	submissionRepo repository.SubmissionRepository
	tx             db.TxRunner
	storage        storage.ObjectStorage
	notifier       mq.Publisher
	demux          *form.Demultiplexer

	codeBucket   string
	maxFileBytes int64
	timeouts     TimeoutConfig
}

// Request pairs validated metadata with the uploaded code object.
type Request struct {
	Meta schema.Meta
	Code form.UploadedFile
}

// Receipt identifies a committed submission.
type Receipt struct {
	ID      string `json:"id"`
	Problem string `json:"problem"`
	Lang    string `json:"lang"`
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.ProblemRepo == nil {
		return nil, errors.New("problem repository is required")
	}
	if cfg.SubmissionRepo == nil {
		return nil, errors.New("submission repository is required")
	}
	if cfg.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if cfg.CodeBucket == "" {
		return nil, errors.New("code bucket is required")
	}
	demux, err := form.NewDemultiplexer(cfg.Storage, cfg.CodeBucket)
	if err != nil {
		return nil, err
	}
	return &SubmitService{
		problemRepo:    cfg.ProblemRepo,
		submissionRepo: cfg.SubmissionRepo,
		tx:             cfg.Tx,
		storage:        cfg.Storage,
		notifier:       cfg.Notifier,
		demux:          demux,
		codeBucket:     cfg.CodeBucket,
		maxFileBytes:   cfg.MaxFileBytes,
		timeouts:       cfg.Timeouts,
	}, nil
}

// Ingest consumes one multipart stream for problemSlug and produces exactly
// one of: a committed receipt, a rejected duplicate, or a coded failure.
// Every terminal state except success removes the objects written during the
// attempt from the store.
func (s *SubmitService) Ingest(ctx context.Context, problemSlug string, reader *multipart.Reader) (*Receipt, error) {
	parts, err := s.demux.ReadParts(ctx, reader, form.Limits{
		FileSizeBytes: s.maxFileBytes,
		MaxFiles:      1,
	})
	if err != nil {
		s.cleanup(ctx, parts)
		return nil, appErr.Wrapf(err, appErr.StorageError, "read form parts failed")
	}

	request, err := s.validateParts(parts)
	if err != nil {
		s.cleanup(ctx, parts)
		return nil, err
	}

	receipt, err := s.record(ctx, problemSlug, request)
	if err != nil {
		s.cleanup(ctx, parts)
		return nil, err
	}

	s.notifyJudge(ctx, receipt, request)
	return receipt, nil
}

// validateParts enforces the structural preconditions and schema-validates
// the field map, pairing the metadata with the single uploaded file.
func (s *SubmitService) validateParts(parts *form.Parts) (*Request, error) {
	if len(parts.Files) < 1 {
		return nil, appErr.Newf(appErr.MissingFile, "%q is required", codeFieldName).
			WithDetail("field", codeFieldName)
	}

	file := parts.Files[0]
	if file.Truncated {
		return nil, appErr.Newf(appErr.FileTooLarge, "%q size must be less than or equal to %dB", codeFieldName, s.maxFileBytes).
			WithDetail("field", codeFieldName).
			WithDetail("limit", s.maxFileBytes).
			WithDetail("encoding", file.Encoding)
	}

	meta, err := schema.ValidateFields(parts.Fields)
	if err != nil {
		var fieldErr *schema.FieldError
		if errors.As(err, &fieldErr) {
			return nil, appErr.SchemaError(fieldErr.Field, fieldErr.Reason)
		}
		return nil, appErr.Wrap(err, appErr.ValidationFailed)
	}

	return &Request{Meta: meta, Code: file}, nil
}

// record looks up the problem and runs the duplicate check and insert inside
// one transaction. The transaction is the serialization point: of two racing
// identical submissions at most one insert commits, the loser observes the
// winner's record inside its own transaction.
func (s *SubmitService) record(ctx context.Context, problemSlug string, request *Request) (*Receipt, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()

	problem, err := s.problemRepo.FindBySlug(ctxDB.ctx, problemSlug)
	if err != nil {
		if errors.Is(err, problemRepo.ErrProblemNotFound) {
			return nil, appErr.Newf(appErr.ProblemNotFound, "problem %q not found", problemSlug).
				WithDetail("slug", problemSlug)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "find problem failed")
	}

	var insertedID primitive.ObjectID
	txErr := s.tx.WithTransaction(ctxDB.ctx, func(sc context.Context) error {
		existing, err := s.submissionRepo.FindDuplicate(sc, problem.ID, request.Meta.Lang, request.Code.ETag)
		if err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "duplicate check failed")
		}
		if existing != nil {
			return appErr.New(appErr.DuplicateSubmission)
		}

		insertedID, err = s.submissionRepo.Insert(sc, &repository.Submission{
			Problem: problem.ID,
			Lang:    request.Meta.Lang,
			Object:  request.Code.ObjectName,
			ETag:    request.Code.ETag,
			Status:  repository.StatusSubmitted,
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateSubmission) {
				return appErr.New(appErr.DuplicateSubmission)
			}
			return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "insert submission failed")
		}
		return nil
	})
	if txErr != nil {
		if appErr.IsCoded(txErr) {
			return nil, txErr
		}
		return nil, appErr.Wrapf(txErr, appErr.TransactionFailed, "submission transaction failed")
	}

	return &Receipt{
		ID:      insertedID.Hex(),
		Problem: problemSlug,
		Lang:    request.Meta.Lang,
	}, nil
}

// GetSubmission retrieves a submission record by its hex id.
func (s *SubmitService) GetSubmission(ctx context.Context, id string) (*repository.Submission, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, appErr.BadRequest("invalid submission id")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()

	submission, err := s.submissionRepo.GetByID(ctxDB.ctx, objectID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return submission, nil
}

// OpenSource retrieves a submission record and opens a reader over its stored
// source object. Caller must close the returned reader.
func (s *SubmitService) OpenSource(ctx context.Context, id string) (*repository.Submission, storage.ObjectReader, error) {
	submission, err := s.GetSubmission(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	source, err := s.storage.GetObject(ctx, s.codeBucket, submission.Object)
	if err != nil {
		return nil, nil, appErr.Wrapf(err, appErr.StorageError, "open submission source failed")
	}
	return submission, source, nil
}

// cleanup removes every object written during a failed attempt. It runs
// detached from the request's cancellation so a dropped client cannot leave
// orphaned blobs behind.
func (s *SubmitService) cleanup(ctx context.Context, parts *form.Parts) {
	if parts == nil || len(parts.Files) == 0 {
		return
	}
	ctxCleanup := withTimeout(context.WithoutCancel(ctx), s.timeouts.Storage)
	defer ctxCleanup.cancel()
	s.demux.Cleanup(ctxCleanup.ctx, parts.Files)
}

// judgeEvent is the payload handed to the judge pipeline after commit.
type judgeEvent struct {
	SubmissionID string `json:"submission_id"`
	Problem      string `json:"problem"`
	Lang         string `json:"lang"`
	Object       string `json:"object"`
	ETag         string `json:"etag"`
}

// notifyJudge publishes a submission-accepted event. Best-effort: the record
// is the source of truth, so a publish failure is logged, not surfaced.
func (s *SubmitService) notifyJudge(ctx context.Context, receipt *Receipt, request *Request) {
	if s.notifier == nil {
		return
	}
	payload, err := json.Marshal(judgeEvent{
		SubmissionID: receipt.ID,
		Problem:      receipt.Problem,
		Lang:         receipt.Lang,
		Object:       request.Code.ObjectName,
		ETag:         request.Code.ETag,
	})
	if err != nil {
		logger.Warn(ctx, "encode judge event failed", zap.Error(err))
		return
	}
	if err := s.notifier.Publish(ctx, receipt.ID, payload); err != nil {
		logger.Warn(ctx, "publish judge event failed",
			zap.String("submission_id", receipt.ID),
			zap.Error(err),
		)
	}
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
