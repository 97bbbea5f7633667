package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"intakeservice/internal/assemble"
	"intakeservice/internal/classify"
	"intakeservice/internal/errdefs"
	"intakeservice/internal/model"
	"intakeservice/internal/notify"
	"intakeservice/internal/textenc"
	"intakeservice/pkg/ctxdata"
	"intakeservice/pkg/logging"
)

type FileStorage interface {
	Upload(ctx context.Context, key string, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

type RecordStore interface {
	Put(ctx context.Context, documentID string, record *model.StructuredRecord) error
}

type Notifier interface {
	SubmissionReceived(ctx context.Context, event notify.SubmissionEvent) error
}

// Stage names the step of the pipeline a submission failed in.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageUpload    Stage = "upload"
	StagePersist   Stage = "persist"
)

// StageError is the failure outcome of one submission: which stage broke and
// the underlying cause. Normalization never produces one.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type IntakeService struct {
	storage      FileStorage
	records      RecordStore
	notifier     Notifier
	stageTimeout time.Duration
	now          func() time.Time
}

func NewIntakeService(storage FileStorage, records RecordStore, notifier Notifier, stageTimeout time.Duration) *IntakeService {
	return &IntakeService{
		storage:      storage,
		records:      records,
		notifier:     notifier,
		stageTimeout: stageTimeout,
		now:          time.Now,
	}
}

// HandleSubmission runs one submission through the linear pipeline:
// normalize -> upload files -> assemble and persist -> notify. Uploads are
// all-or-nothing: any failed upload rolls back the files already stored for
// this submission (best effort) and the record is never persisted. The
// notification after a successful persist is best effort and cannot fail
// the submission.
func (s *IntakeService) HandleSubmission(ctx context.Context, sub *model.Submission) (*model.Receipt, error) {
	now := s.now()

	fields := s.normalizeFields(ctx, sub)
	participant := assemble.ParticipantName(fields)
	ctx = ctxdata.WithParticipant(ctx, participant)
	documentID := assemble.DocumentID(now, participant)

	if logger, ok := logging.GetFromContext(ctx); ok {
		logger.Info(ctx, "submission normalized",
			zap.String("document_id", documentID),
			zap.Int("field_count", len(fields)),
			zap.Int("file_count", len(sub.Files)),
		)
	}

	links, err := s.uploadFiles(ctx, documentID, now, sub.Files)
	if err != nil {
		return nil, &StageError{Stage: StageUpload, Err: err}
	}

	if logger, ok := logging.GetFromContext(ctx); ok {
		logger.Info(ctx, "files uploaded",
			zap.String("document_id", documentID),
			zap.Int("linked_count", len(links)),
		)
	}

	record := assemble.Assemble(now, fields, links)

	persistCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	defer cancel()
	if err := s.records.Put(persistCtx, record.DocumentID, record); err != nil {
		// Uploaded files stay behind: orphaned but harmless, and the next
		// attempt with the same content overwrites them.
		return nil, &StageError{Stage: StagePersist, Err: fmt.Errorf("%w: %w", errdefs.ErrPersist, err)}
	}

	if logger, ok := logging.GetFromContext(ctx); ok {
		logger.Info(ctx, "record persisted", zap.String("document_id", record.DocumentID))
	}

	s.notifySubmission(ctx, record, len(sub.Files))

	return &model.Receipt{DocumentID: record.DocumentID}, nil
}

// normalizeFields repairs every text field and every original filename.
// Recovery failures degrade per field: the raw value is kept and logged.
func (s *IntakeService) normalizeFields(ctx context.Context, sub *model.Submission) map[string]string {
	logger, hasLogger := logging.GetFromContext(ctx)

	fields := make(map[string]string, len(sub.Fields))
	for name, value := range sub.Fields {
		fixed, repaired, err := textenc.Normalize(value)
		if err != nil && hasLogger {
			logger.Warn(ctx, "field encoding recovery failed",
				zap.String("field", name), zap.Error(err))
		}
		if repaired && hasLogger {
			logger.Debug(ctx, "field encoding repaired", zap.String("field", name))
		}
		fields[name] = fixed
	}

	for i := range sub.Files {
		fixed, _, err := textenc.Normalize(sub.Files[i].OriginalFilename)
		if err != nil && hasLogger {
			logger.Warn(ctx, "filename encoding recovery failed",
				zap.String("field", sub.Files[i].FieldName), zap.Error(err))
		}
		sub.Files[i].OriginalFilename = fixed
	}

	return fields
}

// uploadFiles stores every file sequentially. On the first failure it
// deletes the objects already stored for this submission and reports the
// whole stage failed.
func (s *IntakeService) uploadFiles(ctx context.Context, documentID string, now time.Time, files []model.UploadedFile) ([]assemble.LinkedFile, error) {
	var links []assemble.LinkedFile
	var uploadedKeys []string

	for _, file := range files {
		key, classified := classify.Classify(file.FieldName)

		objectKey := objectKeyFor(documentID, key, classified, file)
		url, err := s.uploadOne(ctx, objectKey, file)
		if err != nil {
			s.rollbackUploads(ctx, uploadedKeys)
			return nil, fmt.Errorf("%w: file %s: %w", errdefs.ErrUpload, file.FieldName, err)
		}
		uploadedKeys = append(uploadedKeys, objectKey)

		if !classified {
			if logger, ok := logging.GetFromContext(ctx); ok {
				logger.Info(ctx, "file stored without record link",
					zap.String("field", file.FieldName), zap.String("key", objectKey))
			}
			continue
		}

		// Same classifier key twice means same object key: the later upload
		// already overwrote the earlier object, the link just follows.
		links = append(links, assemble.LinkedFile{
			Key: key,
			Link: model.FileLink{
				Key:              key.String(),
				URL:              url,
				OriginalFilename: file.OriginalFilename,
				UploadedAt:       now.UTC(),
			},
		})
	}

	return links, nil
}

func (s *IntakeService) uploadOne(ctx context.Context, objectKey string, file model.UploadedFile) (string, error) {
	body, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file part: %w", err)
	}
	defer func() { _ = body.Close() }()

	uploadCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	defer cancel()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return s.storage.Upload(uploadCtx, objectKey, contentType, body)
}

// rollbackUploads is the compensating half of the all-or-nothing upload
// stage. Failures here are logged only; a leaked object is harmless.
func (s *IntakeService) rollbackUploads(ctx context.Context, keys []string) {
	for _, key := range keys {
		deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.stageTimeout)
		err := s.storage.Delete(deleteCtx, key)
		cancel()
		if err != nil {
			if logger, ok := logging.GetFromContext(ctx); ok {
				logger.Warn(ctx, "failed to roll back uploaded file",
					zap.String("key", key), zap.Error(err))
			}
		}
	}
}

func (s *IntakeService) notifySubmission(ctx context.Context, record *model.StructuredRecord, fileCount int) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.stageTimeout)
	defer cancel()

	err := s.notifier.SubmissionReceived(notifyCtx, notify.SubmissionEvent{
		DocumentID:      record.DocumentID,
		ParticipantName: record.Participant.Name,
		FileCount:       fileCount,
		ReceivedAt:      record.Metadata.CreatedAt,
	})
	if err != nil {
		if logger, ok := logging.GetFromContext(ctx); ok {
			logger.Warn(ctx, "failed to send submission notification",
				zap.String("document_id", record.DocumentID), zap.Error(err))
		}
	}
}

// objectKeyFor builds the storage key. Classified files live under their
// semantic key; the rest under field name plus original filename, so two
// extras on the same field cannot overwrite each other.
func objectKeyFor(documentID string, key classify.OutputKey, classified bool, file model.UploadedFile) string {
	if classified {
		ext := strings.ToLower(path.Ext(file.OriginalFilename))
		return documentID + "/" + key.String() + ext
	}
	field := sanitizeKeyPart(file.FieldName)
	base := sanitizeKeyPart(path.Base(file.OriginalFilename))
	if base == "" || base == "." {
		return documentID + "/" + field
	}
	return documentID + "/" + field + "_" + base
}

func sanitizeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, s)
}
