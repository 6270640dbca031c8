package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-docs-api/internal/models"
	appErrors "github.com/noah-isme/sma-docs-api/pkg/errors"
	"github.com/noah-isme/sma-docs-api/pkg/export"
)

type historyStore interface {
	List(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error)
}

// ExportFormat selects the rendering of an audit trail download.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult bundles rendered bytes with response metadata.
type ExportResult struct {
	Content  []byte
	MimeType string
	Filename string
}

// HistoryService reads the append-only audit trail and renders exports.
type HistoryService struct {
	repo   historyStore
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewHistoryService constructs the service.
func NewHistoryService(repo historyStore, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{
		repo:   repo,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

// List returns audit entries, most recent first. Non-reviewers only see
// entries they performed themselves.
func (s *HistoryService) List(ctx context.Context, filter models.HistoryFilter, actor *models.JWTClaims) ([]models.HistoryEntry, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.IsReviewer() {
		filter.PerformedBy = actor.UserID
	}
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list history")
	}
	return entries, nil
}

// Export renders the matching audit entries as CSV or PDF.
func (s *HistoryService) Export(ctx context.Context, filter models.HistoryFilter, format ExportFormat, actor *models.JWTClaims) (*ExportResult, error) {
	entries, err := s.List(ctx, filter, actor)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Time", "Document", "Action", "Performed By", "Details"},
		Rows:    make([]map[string]string, 0, len(entries)),
	}
	for _, entry := range entries {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Time":         entry.PerformedAt.UTC().Format(time.RFC3339),
			"Document":     entry.DocumentTitle,
			"Action":       entry.Action,
			"Performed By": entry.PerformedByName,
			"Details":      string(entry.Details),
		})
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	switch ExportFormat(strings.ToLower(string(format))) {
	case ExportFormatCSV, "":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{Content: content, MimeType: "text/csv", Filename: fmt.Sprintf("document-history-%s.csv", stamp)}, nil
	case ExportFormatPDF:
		content, err := s.pdf.Render(dataset, "Document History")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{Content: content, MimeType: "application/pdf", Filename: fmt.Sprintf("document-history-%s.pdf", stamp)}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}
