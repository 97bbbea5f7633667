package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"intakeservice/internal/errdefs"
	"intakeservice/internal/model"
	"intakeservice/internal/notify"
)

// MockFileStorage is a testify mock for FileStorage.
type MockFileStorage struct {
	mock.Mock
}

func (m *MockFileStorage) Upload(ctx context.Context, key string, contentType string, body io.Reader) (string, error) {
	args := m.Called(ctx, key, contentType, body)
	return args.String(0), args.Error(1)
}

func (m *MockFileStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockRecordStore is a testify mock for RecordStore.
type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) Put(ctx context.Context, documentID string, record *model.StructuredRecord) error {
	args := m.Called(ctx, documentID, record)
	return args.Error(0)
}

// MockNotifier is a testify mock for Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SubmissionReceived(ctx context.Context, event notify.SubmissionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestService(storage FileStorage, records RecordStore, notifier Notifier) *IntakeService {
	return &IntakeService{
		storage:      storage,
		records:      records,
		notifier:     notifier,
		stageTimeout: time.Second,
		now:          func() time.Time { return testNow },
	}
}

// trackedReader counts closes so tests can assert every opened file handle
// is released exactly once.
type trackedReader struct {
	io.Reader
	closes int
}

func (r *trackedReader) Close() error {
	r.closes++
	return nil
}

func testFile(fieldName, filename string, reader *trackedReader) model.UploadedFile {
	return model.UploadedFile{
		FieldName:        fieldName,
		OriginalFilename: filename,
		ContentType:      "application/octet-stream",
		Open: func() (io.ReadCloser, error) {
			return reader, nil
		},
	}
}

func TestHandleSubmission_NoFiles(t *testing.T) {
	mockStorage := new(MockFileStorage)
	mockRecords := new(MockRecordStore)
	mockNotifier := new(MockNotifier)
	svc := newTestService(mockStorage, mockRecords, mockNotifier)

	var persisted *model.StructuredRecord
	mockRecords.On("Put", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			persisted = args.Get(2).(*model.StructuredRecord)
		}).
		Return(nil)
	mockNotifier.On("SubmissionReceived", mock.Anything, mock.Anything).Return(nil)

	receipt, err := svc.HandleSubmission(context.Background(), &model.Submission{
		Fields: map[string]string{"name": "홍길동"},
	})

	require.NoError(t, err)
	assert.Equal(t, "2026-03-14T09:26:53Z_홍길동", receipt.DocumentID)

	require.NotNil(t, persisted)
	assert.Equal(t, "홍길동", persisted.Participant.Name)
	assert.Empty(t, persisted.Files.AudioFiles)
	assert.Empty(t, persisted.Files.PDFFiles)
	mockStorage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockRecords.AssertExpectations(t)
}

func TestHandleSubmission_MojibakeFieldRepaired(t *testing.T) {
	mockStorage := new(MockFileStorage)
	mockRecords := new(MockRecordStore)
	mockNotifier := new(MockNotifier)
	svc := newTestService(mockStorage, mockRecords, mockNotifier)

	// "홍길동" after the upstream Latin-1 misread.
	var corrupted strings.Builder
	for _, b := range []byte("홍길동") {
		corrupted.WriteRune(rune(b))
	}

	var persisted *model.StructuredRecord
	mockRecords.On("Put", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			persisted = args.Get(2).(*model.StructuredRecord)
		}).
		Return(nil)
	mockNotifier.On("SubmissionReceived", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.HandleSubmission(context.Background(), &model.Submission{
		Fields: map[string]string{"name": corrupted.String()},
	})

	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "홍길동", persisted.Participant.Name)
}

func TestHandleSubmission_FilesLinkedByClassifier(t *testing.T) {
	mockStorage := new(MockFileStorage)
	mockRecords := new(MockRecordStore)
	mockNotifier := new(MockNotifier)
	svc := newTestService(mockStorage, mockRecords, mockNotifier)

	audio := &trackedReader{Reader: strings.NewReader("wav bytes")}
	consent := &trackedReader{Reader: strings.NewReader("pdf bytes")}

	mockStorage.On("Upload", mock.Anything, "2026-03-14T09:26:53Z_홍길동/Audio_3.wav", mock.Anything, mock.Anything).
		Return("http://minio/intake/a3.wav", nil)
	mockStorage.On("Upload", mock.Anything, "2026-03-14T09:26:53Z_홍길동/PDF_Consent.pdf", mock.Anything, mock.Anything).
		Return("http://minio/intake/consent.pdf", nil)

	var persisted *model.StructuredRecord
	mockRecords.On("Put", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			persisted = args.Get(2).(*model.StructuredRecord)
		}).
		Return(nil)
	mockNotifier.On("SubmissionReceived", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.HandleSubmission(context.Background(), &model.Submission{
		Fields: map[string]string{"name": "홍길동"},
		Files: []model.UploadedFile{
			testFile("audio_q_3", "answer.wav", audio),
			testFile("consent_form", "consent.pdf", consent),
		},
	})

	require.NoError(t, err)
	require.NotNil(t, persisted)

	require.Contains(t, persisted.Files.AudioFiles, "question_3")
	assert.Equal(t, "http://minio/intake/a3.wav", persisted.Files.AudioFiles["question_3"].URL)
	require.Contains(t, persisted.Files.PDFFiles, "consent")
	assert.Equal(t, "http://minio/intake/consent.pdf", persisted.Files.PDFFiles["consent"].URL)

	assert.Equal(t, 1, audio.closes)
	assert.Equal(t, 1, consent.closes)
	mockStorage.AssertExpectations(t)
}

func TestHandleSubmission_UnclassifiedFileStoredNotLinked(t *testing.T) {
	mockStorage := new(MockFileStorage)
	mockRecords := new(MockRecordStore)
	mockNotifier := new(MockNotifier)
	svc := newTestService(mockStorage, mockRecords, mockNotifier)

	extra := &trackedReader{Reader: strings.NewReader("bytes")}
	mockStorage.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("http://minio/intake/extra.bin", nil)

	var persisted *model.StructuredRecord
	mockRecords.On("Put", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			persisted = args.Get(2).(*model.StructuredRecord)
		}).
		Return(nil)
	mockNotifier.On("SubmissionReceived", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.HandleSubmission(context.Background(), &model.Submission{
		Fields: map[string]string{"name": "홍길동"},
		Files:  []model.UploadedFile{testFile("profile_picture", "me.png", extra)},
	})

	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Empty(t, persisted.Files.AudioFiles)
	assert.Empty(t, persisted.Files.PDFFiles)
	assert.Equal(t, 1, extra.closes)
	mockStorage.AssertNumberOfCalls(t, "Upload", 1)
}

func TestHandleSubmission_UnclassifiedFilesGetDistinctKeys(t *testing.T) {
	mockStorage := new(MockFileStorage)
	mockRecords := new(MockRecordStore)
	mockNotifier := new(MockNotifier)
	svc := newTestService(mockStorage, mockRecords, mockNotifier)

	first := &trackedReader{Reader: strings.NewReader("one")}
	second := &trackedReader{Reader: strings.NewReader("two")}

	var keys []string
	mockStorage.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			keys = append(keys, args.String(1))
		}).
		Return("http://minio/intake/extra", nil)
	mockRecords.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mockNotifier.On("SubmissionReceived", mock.Anything, mock.Anything).Return(nil)

	// Same field name, same extension: only the original filename separates
	// the two objects.
	_, err := svc.HandleSubmission(context.Background(), &model.Submission{
		Fields: map[string]string{"name": "홍길동"},
		Files: []model.UploadedFile{
			testFile("attachment", "notes_one.txt", first),
			testFile("attachment", "notes_two.txt", second),
		},
	})

	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.NotEqual(t, keys[0], keys[1])
	assert.Equal(t, "2026-03-14T09:26:53Z_홍길동/attachment_notes_one.txt", keys[0])
	assert.Equal(t, "2026-03-14T09:26:53Z_홍길동/attachment_notes_two.txt", keys[1])
}

func TestHandleSubmission_UploadFailureIsAllOrNothing(t *testing.T) {
	mockStorage := new(MockFileStorage)
	mockRecords := new(MockRecordStore)
	mockNotifier := new(MockNotifier)
	svc := newTestService(mockStorage, mockRecords, mockNotifier)

	first := &trackedReader{Reader: strings.NewReader("one")}
	second := &trackedReader{Reader: strings.NewReader("two")}
	third := &trackedReader{Reader: strings.NewReader("three")}

	firstKey := "2026-03-14T09:26:53Z_홍길동/Audio_1.wav"
	mockStorage.On("Upload", mock.Anything, firstKey, mock.Anything, mock.Anything).
		Return("http://minio/intake/a1.wav", nil)
	mockStorage.On("Upload", mock.Anything, "2026-03-14T09:26:53Z_홍길동/Audio_2.wav", mock.Anything, mock.Anything).
		Return("", errors.New("connection reset"))
	mockStorage.On("Delete", mock.Anything, firstKey).Return(nil)

	_, err := svc.HandleSubmission(context.Background(), &model.Submission{
		Fields: map[string]string{"name": "홍길동"},
		Files: []model.UploadedFile{
			testFile("audio_q_1", "a1.wav", first),
			testFile("audio_q_2", "a2.wav", second),
			testFile("audio_q_3", "a3.wav", third),
		},
	})

	require.Error(t, err)
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageUpload, stageErr.Stage)
	assert.True(t, errors.Is(err, errdefs.ErrUpload))

	// No record, no notification, the stored file rolled back, and the
	// opened handles released; the third file was never opened.
	mockRecords.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
	mockNotifier.AssertNotCalled(t, "SubmissionReceived", mock.Anything, mock.Anything)
	mockStorage.AssertCalled(t, "Delete", mock.Anything, firstKey)
	assert.Equal(t, 1, first.closes)
	assert.Equal(t, 1, second.closes)
	assert.Equal(t, 0, third.closes)
}

func TestHandleSubmission_PersistFailure(t *testing.T) {
	mockStorage := new(MockFileStorage)
	mockRecords := new(MockRecordStore)
	mockNotifier := new(MockNotifier)
	svc := newTestService(mockStorage, mockRecords, mockNotifier)

	mockRecords.On("Put", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("connection refused"))

	_, err := svc.HandleSubmission(context.Background(), &model.Submission{
		Fields: map[string]string{"name": "홍길동"},
	})

	require.Error(t, err)
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StagePersist, stageErr.Stage)
	assert.True(t, errors.Is(err, errdefs.ErrPersist))
	mockNotifier.AssertNotCalled(t, "SubmissionReceived", mock.Anything, mock.Anything)
}

func TestHandleSubmission_NotifierFailureDoesNotFailSubmission(t *testing.T) {
	mockStorage := new(MockFileStorage)
	mockRecords := new(MockRecordStore)
	mockNotifier := new(MockNotifier)
	svc := newTestService(mockStorage, mockRecords, mockNotifier)

	mockRecords.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mockNotifier.On("SubmissionReceived", mock.Anything, mock.Anything).
		Return(errors.New("broker down"))

	receipt, err := svc.HandleSubmission(context.Background(), &model.Submission{
		Fields: map[string]string{"name": "홍길동"},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, receipt.DocumentID)
	mockNotifier.AssertExpectations(t)
}

func TestHandleSubmission_UnansweredSectionScoresNil(t *testing.T) {
	mockStorage := new(MockFileStorage)
	mockRecords := new(MockRecordStore)
	mockNotifier := new(MockNotifier)
	svc := newTestService(mockStorage, mockRecords, mockNotifier)

	var persisted *model.StructuredRecord
	mockRecords.On("Put", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			persisted = args.Get(2).(*model.StructuredRecord)
		}).
		Return(nil)
	mockNotifier.On("SubmissionReceived", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.HandleSubmission(context.Background(), &model.Submission{
		Fields: map[string]string{"name": "홍길동", "ij_1": "4"},
	})

	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.NotNil(t, persisted.Scores["interactional_justice"])
	assert.Nil(t, persisted.Scores["procedural_justice"])
	assert.Nil(t, persisted.Scores["distributive_justice"])
	assert.Nil(t, persisted.Scores["informational_justice"])
}
