package service

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

type mockResultSource struct {
	result *dto.TimetableResultResponse
	err    error
}

func (m *mockResultSource) GetResult(ctx context.Context, runID string) (*dto.TimetableResultResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func sampleResult() *dto.TimetableResultResponse {
	return &dto.TimetableResultResponse{
		RunID:      "run-1",
		Fitness:    987.5,
		Generation: 120,
		Days:       timetable.DayNames[:],
		Periods:    timetable.PeriodsPerDay,
		Lessons: models.TimetableGrid{
			{Day: 0, Period: 0, ClassID: "5a", ClassName: "5a", SubjectID: "math", SubjectName: "Mathematics", TeacherID: "t1", TeacherName: "A. Curie"},
			{Day: 0, Period: 1, ClassID: "5a", ClassName: "5a", SubjectID: "bio", SubjectName: "Biology", TeacherID: "t2", TeacherName: "B. Darwin"},
			{Day: 1, Period: 0, ClassID: "5b", ClassName: "5b", SubjectID: "math", SubjectName: "Mathematics", TeacherID: "t1", TeacherName: "A. Curie"},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func newExportFixture(t *testing.T, source resultSource) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(source, store, signer, zap.NewNop(), ExportConfig{})
}

func downloadBody(t *testing.T, svc *ExportService, link *dto.ExportLinkResponse) ([]byte, *ExportDownload) {
	t.Helper()
	token := strings.TrimPrefix(link.URL, "/api/v1/exports/download?token=")
	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	data, err := io.ReadAll(download.File)
	require.NoError(t, err)
	return data, download
}

func TestExportServiceCSVFull(t *testing.T) {
	svc := newExportFixture(t, &mockResultSource{result: sampleResult()})

	link, err := svc.Export(context.Background(), "run-1", dto.ExportQuery{})
	require.NoError(t, err)
	assert.Equal(t, "timetable_run-1_full.csv", link.Filename)
	assert.True(t, strings.HasPrefix(link.URL, "/api/v1/exports/download?token="))

	data, download := downloadBody(t, svc, link)
	assert.Equal(t, "text/csv", download.ContentType)

	content := string(data)
	assert.Contains(t, content, "Day,Period,Class,Subject,Teacher")
	assert.Contains(t, content, "Monday,1,5a,Mathematics,A. Curie")
	assert.Contains(t, content, "Tuesday,1,5b,Mathematics,A. Curie")
}

func TestExportServiceJSONScopeClass(t *testing.T) {
	svc := newExportFixture(t, &mockResultSource{result: sampleResult()})

	link, err := svc.Export(context.Background(), "run-1", dto.ExportQuery{Format: "json", Scope: "class", ID: "5a"})
	require.NoError(t, err)
	assert.Equal(t, "timetable_run-1_class_5a.json", link.Filename)

	data, download := downloadBody(t, svc, link)
	assert.Equal(t, "application/json", download.ContentType)

	var decoded dto.TimetableResultResponse
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Lessons, 2)
	for _, lesson := range decoded.Lessons {
		assert.Equal(t, "5a", lesson.ClassID)
	}
}

func TestExportServicePDFDay(t *testing.T) {
	svc := newExportFixture(t, &mockResultSource{result: sampleResult()})

	day := 0
	link, err := svc.Export(context.Background(), "run-1", dto.ExportQuery{Format: "pdf", Scope: "day", Day: &day})
	require.NoError(t, err)
	assert.Equal(t, "timetable_run-1_day_monday.pdf", link.Filename)

	data, download := downloadBody(t, svc, link)
	assert.Equal(t, "application/pdf", download.ContentType)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestExportServiceDayScopeRequiresDay(t *testing.T) {
	svc := newExportFixture(t, &mockResultSource{result: sampleResult()})

	_, err := svc.Export(context.Background(), "run-1", dto.ExportQuery{Scope: "day"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceDayScopeRejectsOutOfRangeDay(t *testing.T) {
	svc := newExportFixture(t, &mockResultSource{result: sampleResult()})

	day := 9
	_, err := svc.Export(context.Background(), "run-1", dto.ExportQuery{Scope: "day", Day: &day})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	day = -1
	_, err = svc.Export(context.Background(), "run-1", dto.ExportQuery{Scope: "day", Day: &day})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceUnknownScopeTarget(t *testing.T) {
	svc := newExportFixture(t, &mockResultSource{result: sampleResult()})

	_, err := svc.Export(context.Background(), "run-1", dto.ExportQuery{Scope: "teacher", ID: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportServicePropagatesResultErrors(t *testing.T) {
	svc := newExportFixture(t, &mockResultSource{err: appErrors.ErrResultNotReady})

	_, err := svc.Export(context.Background(), "run-1", dto.ExportQuery{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrResultNotReady.Code, appErrors.FromError(err).Code)
}

func TestExportServiceRejectsForgedToken(t *testing.T) {
	svc := newExportFixture(t, &mockResultSource{result: sampleResult()})

	_, err := svc.ResolveDownload(context.Background(), "run-1.9999999999.cGF0aA.deadbeef")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
