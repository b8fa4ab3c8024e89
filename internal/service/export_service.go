package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"alcyxob/setpad/internal/auth"
	"alcyxob/setpad/internal/domain"
	"alcyxob/setpad/internal/repository"
	"alcyxob/setpad/internal/storage"
)

var (
	ErrExportFailed        = errors.New("failed to export training logs")
	ErrUnknownExportFormat = errors.New("unknown export format")
)

// ExportFormat selects the file layout of an export.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

var csvHeader = []string{"Date", "Workout Name", "Exercise", "Muscle Group", "Set #", "Reps", "Weight", "Notes"}

// ExportResult describes an uploaded export file.
type ExportResult struct {
	ObjectKey   string    `json:"objectKey"`
	DownloadURL string    `json:"downloadUrl"`
	Format      string    `json:"format"`
	Logs        int       `json:"logs"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ExportService renders all of a user's logs into a file in object storage.
type ExportService interface {
	Export(ctx context.Context, format ExportFormat) (*ExportResult, error)
}

type exportService struct {
	logs      repository.LogRepository
	users     auth.Provider
	files     storage.FileStorage
	urlExpiry time.Duration
	now       func() time.Time
}

func NewExportService(logs repository.LogRepository, users auth.Provider, files storage.FileStorage, urlExpiry time.Duration) ExportService {
	if urlExpiry <= 0 {
		urlExpiry = storage.DefaultPresignedURLExpiry
	}
	return &exportService{logs: logs, users: users, files: files, urlExpiry: urlExpiry, now: time.Now}
}

func (s *exportService) Export(ctx context.Context, format ExportFormat) (*ExportResult, error) {
	user, ok := s.users.CurrentUser(ctx)
	if !ok {
		return nil, repository.ErrUnauthenticated
	}

	now := s.now()
	var render func([]domain.LogRecord) ([]byte, error)
	var contentType string
	switch format {
	case ExportCSV:
		render, contentType = RenderCSV, "text/csv"
	case ExportJSON:
		render = func(records []domain.LogRecord) ([]byte, error) { return RenderJSON(records, now) }
		contentType = "application/json"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExportFormat, format)
	}

	records, err := s.logs.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	body, err := render(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}

	key := fmt.Sprintf("exports/%s/%s.%s", user.ID, uuid.NewString(), format)
	if err := s.files.PutObject(ctx, key, contentType, body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	url, err := s.files.GeneratePresignedDownloadURL(ctx, key, s.urlExpiry)
	if err != nil {
		// Nobody can download the file without a link.
		if delErr := s.files.DeleteObject(ctx, key); delErr != nil {
			log.WithError(delErr).WithField("key", key).Warn("could not remove unreachable export")
		}
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}

	return &ExportResult{
		ObjectKey:   key,
		DownloadURL: url,
		Format:      string(format),
		Logs:        len(records),
		ExpiresAt:   now.Add(s.urlExpiry).UTC(),
	}, nil
}

// RenderCSV writes one line per set. Rows without sets still get one line.
func RenderCSV(records []domain.LogRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, rec := range records {
		for _, row := range rec.Rows {
			sets := row.Sets
			if len(sets) == 0 {
				sets = []domain.SetEntry{{}}
			}
			for i, set := range sets {
				weight := set.Weight
				if weight != "" {
					weight += " " + string(row.WeightUnit)
				}
				notes := ""
				if i == 0 {
					notes = row.Notes
				}
				line := []string{
					rec.Date.String(),
					rec.TableName,
					row.Exercise,
					row.MuscleGroup,
					strconv.Itoa(i + 1),
					set.Reps,
					weight,
					notes,
				}
				if err := w.Write(line); err != nil {
					return nil, err
				}
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// RenderJSON writes the records as an indented JSON document stamped with
// exportedAt.
func RenderJSON(records []domain.LogRecord, exportedAt time.Time) ([]byte, error) {
	doc := struct {
		ExportedAt time.Time          `json:"exportedAt"`
		Tables     []domain.LogRecord `json:"tables"`
	}{
		ExportedAt: exportedAt.UTC(),
		Tables:     records,
	}
	if doc.Tables == nil {
		doc.Tables = []domain.LogRecord{}
	}
	return json.MarshalIndent(doc, "", "  ")
}
