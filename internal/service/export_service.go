package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
)

type resultSource interface {
	GetResult(ctx context.Context, runID string) (*dto.TimetableResultResponse, error)
}

type fileStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type linkSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error)
}

// ExportConfig governs download link construction and file retention.
type ExportConfig struct {
	DownloadPath string
	ResultTTL    time.Duration
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders finished timetables into CSV, PDF, and JSON files
// and serves them through signed download links.
type ExportService struct {
	results resultSource
	storage fileStore
	signer  linkSigner
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs the export service.
func NewExportService(results resultSource, storage fileStore, signer linkSigner, logger *zap.Logger, cfg ExportConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/exports/download"
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		results: results,
		storage: storage,
		signer:  signer,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
		cfg:     cfg,
	}
}

// Export renders the run's timetable in the requested format and scope and
// returns a signed download link.
func (s *ExportService) Export(ctx context.Context, runID string, q dto.ExportQuery) (*dto.ExportLinkResponse, error) {
	format := q.Format
	if format == "" {
		format = "csv"
	}
	scope := q.Scope
	if scope == "" {
		scope = "full"
	}
	if err := s.validateQuery(format, scope, q); err != nil {
		return nil, err
	}

	result, err := s.results.GetResult(ctx, runID)
	if err != nil {
		return nil, err
	}

	lessons := filterLessons(result.Lessons, scope, q)
	if scope != "full" && len(lessons) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no lessons match the export scope")
	}

	data, ext, err := s.render(result, lessons, format, scope, q)
	if err != nil {
		return nil, err
	}

	filename := exportFilename(runID, scope, q, ext)
	relPath, err := s.storage.Save(filename, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(runID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	s.logger.Info("export rendered", zap.String("run_id", runID), zap.String("scope", scope), zap.String("format", format))
	return &dto.ExportLinkResponse{
		URL:       fmt.Sprintf("%s?token=%s", s.cfg.DownloadPath, token),
		Filename:  filename,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *ExportService) validateQuery(format, scope string, q dto.ExportQuery) error {
	switch format {
	case "csv", "pdf", "json":
	default:
		return appErrors.Clone(appErrors.ErrValidation, "format must be csv, pdf, or json")
	}
	switch scope {
	case "full":
	case "day":
		if q.Day == nil {
			return appErrors.Clone(appErrors.ErrValidation, "day is required for day exports")
		}
		if *q.Day < 0 || *q.Day >= timetable.DaysPerWeek {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("day must be within 0..%d", timetable.DaysPerWeek-1))
		}
	case "class", "teacher":
		if q.ID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "id is required for class and teacher exports")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "scope must be full, day, class, or teacher")
	}
	return nil
}

func (s *ExportService) render(result *dto.TimetableResultResponse, lessons models.TimetableGrid, format, scope string, q dto.ExportQuery) ([]byte, string, error) {
	switch format {
	case "json":
		out := *result
		out.Lessons = lessons
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode export")
		}
		return data, "json", nil
	case "csv":
		data, err := s.csv.Render(buildTable(lessons, scope))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return data, "csv", nil
	default:
		data, err := s.pdf.Render(buildTable(lessons, scope), exportTitle(scope, q))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return data, "pdf", nil
	}
}

// ResolveDownload validates a token and opens the stored export file.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	_, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	return &ExportDownload{
		File:        file,
		Filename:    filepath.Base(relPath),
		ContentType: contentTypeFor(relPath),
		ExpiresAt:   expiresAt,
	}, nil
}

// StartCleanup periodically removes expired export files until ctx ends.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("export cleanup removed files", zap.Int("count", len(deleted)))
				}
			}
		}
	}()
}

// --- table construction ---

func filterLessons(lessons models.TimetableGrid, scope string, q dto.ExportQuery) models.TimetableGrid {
	keep := func(models.ScheduledLesson) bool { return true }
	switch scope {
	case "day":
		keep = func(l models.ScheduledLesson) bool { return q.Day != nil && l.Day == *q.Day }
	case "class":
		keep = func(l models.ScheduledLesson) bool { return l.ClassID == q.ID }
	case "teacher":
		keep = func(l models.ScheduledLesson) bool { return l.TeacherID == q.ID }
	}
	out := make(models.TimetableGrid, 0, len(lessons))
	for _, l := range lessons {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

// buildTable renders flat rows for full and day scopes, and a week matrix
// with one row per period for class and teacher scopes.
func buildTable(lessons models.TimetableGrid, scope string) export.Table {
	switch scope {
	case "class":
		return buildMatrix(lessons, func(l models.ScheduledLesson) string {
			return fmt.Sprintf("%s (%s)", l.SubjectName, l.TeacherName)
		})
	case "teacher":
		return buildMatrix(lessons, func(l models.ScheduledLesson) string {
			return fmt.Sprintf("%s (%s)", l.SubjectName, l.ClassName)
		})
	}

	sorted := append(models.TimetableGrid(nil), lessons...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Day != sorted[j].Day {
			return sorted[i].Day < sorted[j].Day
		}
		if sorted[i].Period != sorted[j].Period {
			return sorted[i].Period < sorted[j].Period
		}
		return sorted[i].ClassName < sorted[j].ClassName
	})

	headers := []string{"Day", "Period", "Class", "Subject", "Teacher"}
	rows := make([]map[string]string, 0, len(sorted))
	for _, l := range sorted {
		rows = append(rows, map[string]string{
			"Day":     timetable.DayNames[l.Day],
			"Period":  fmt.Sprintf("%d", l.Period+1),
			"Class":   l.ClassName,
			"Subject": l.SubjectName,
			"Teacher": l.TeacherName,
		})
	}
	return export.Table{Headers: headers, Rows: rows}
}

func buildMatrix(lessons models.TimetableGrid, cell func(models.ScheduledLesson) string) export.Table {
	headers := make([]string, 0, timetable.DaysPerWeek+1)
	headers = append(headers, "Period")
	headers = append(headers, timetable.DayNames[:]...)

	rows := make([]map[string]string, timetable.PeriodsPerDay)
	for period := 0; period < timetable.PeriodsPerDay; period++ {
		rows[period] = map[string]string{"Period": fmt.Sprintf("%d", period+1)}
	}
	for _, l := range lessons {
		rows[l.Period][timetable.DayNames[l.Day]] = cell(l)
	}
	return export.Table{Headers: headers, Rows: rows}
}

func exportFilename(runID, scope string, q dto.ExportQuery, ext string) string {
	parts := []string{"timetable", runID, scope}
	switch scope {
	case "day":
		if q.Day != nil {
			parts = append(parts, strings.ToLower(timetable.DayNames[*q.Day]))
		}
	case "class", "teacher":
		parts = append(parts, q.ID)
	}
	return fmt.Sprintf("%s.%s", strings.Join(parts, "_"), ext)
}

func exportTitle(scope string, q dto.ExportQuery) string {
	switch scope {
	case "day":
		if q.Day != nil {
			return fmt.Sprintf("Timetable %s", timetable.DayNames[*q.Day])
		}
	case "class":
		return fmt.Sprintf("Class timetable %s", q.ID)
	case "teacher":
		return fmt.Sprintf("Teacher timetable %s", q.ID)
	}
	return "Weekly timetable"
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}
