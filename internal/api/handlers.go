package api

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"airspace-charge-auditor/internal/parsers"
	"airspace-charge-auditor/internal/reconciler"
	"airspace-charge-auditor/internal/reporter"
	"airspace-charge-auditor/pkg/errors"
	"airspace-charge-auditor/pkg/logger"

	"github.com/gin-gonic/gin"
)

const auditIDKey = "audit_id"

// Multipart field names; the second of each pair is the legacy name
var (
	scheduleFields = []string{"schedule_file", "leon_file"}
	chargeFields   = []string{"charge_files", "euro_files"}
)

// handleStatus answers GET / and GET /health
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "airspace-charge-auditor",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleAudit answers POST /audit/eurocontrol
func (s *Server) handleAudit(c *gin.Context) {
	start := time.Now()

	format := reporter.OutputFormat(strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "json"))))
	if format != reporter.FormatJSON && format != reporter.FormatCSV && format != reporter.FormatXLSX {
		s.writeError(c, errors.ValidationError(errors.CodeInvalidValue, "format", string(format), nil).
			WithSuggestion("use one of: json, csv, xlsx"))
		return
	}

	request, err := readAuditRequest(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "upload exceeds the size limit",
				"limit": tooLarge.Limit,
			})
			return
		}
		s.metrics.ObserveAudit(nil, err, time.Since(start))
		s.writeError(c, err)
		return
	}

	result, err := s.service.ProcessAudit(c.Request.Context(), request)
	s.metrics.ObserveAudit(result, err, time.Since(start))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.Set(auditIDKey, result.AuditID)
	c.Header("X-Audit-ID", result.AuditID)

	if format == reporter.FormatJSON {
		c.JSON(http.StatusOK, result)
		return
	}

	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
		Format:           format,
		IncludeRecords:   true,
		IncludeUnmatched: true,
		CSVDelimiter:     ',',
		CSVHeaders:       true,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	var buffer bytes.Buffer
	if err := generator.GenerateReport(result, &buffer); err != nil {
		s.writeError(c, errors.InternalError(errors.CodeUnexpectedError, "report_generation", err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, reporter.ExportFileName(result, format)))
	c.Data(http.StatusOK, format.ContentType(), buffer.Bytes())
}

// readAuditRequest collects the uploaded files into an in-memory request
func readAuditRequest(c *gin.Context) (*reconciler.AuditRequest, error) {
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, tooLarge
		}
		return nil, errors.ValidationError(errors.CodeMissingField, "schedule_file", nil, err).
			WithSuggestion("send a multipart/form-data request with schedule_file and charge_files")
	}

	var scheduleHeaders []*multipart.FileHeader
	for _, field := range scheduleFields {
		if files := form.File[field]; len(files) > 0 {
			scheduleHeaders = files
			break
		}
	}
	if len(scheduleHeaders) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "schedule_file", nil, nil).
			WithSuggestion("attach the flight schedule export as schedule_file")
	}

	var chargeHeaders []*multipart.FileHeader
	for _, field := range chargeFields {
		chargeHeaders = append(chargeHeaders, form.File[field]...)
	}
	if len(chargeHeaders) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "charge_files", nil, nil).
			WithSuggestion("attach one or more Eurocontrol charge files as charge_files")
	}

	schedule, err := readUpload(scheduleHeaders[0])
	if err != nil {
		return nil, err
	}

	charges := make([]parsers.Source, 0, len(chargeHeaders))
	for _, header := range chargeHeaders {
		source, err := readUpload(header)
		if err != nil {
			return nil, err
		}
		charges = append(charges, source)
	}

	return &reconciler.AuditRequest{
		Schedule: &schedule,
		Charges:  charges,
	}, nil
}

func readUpload(header *multipart.FileHeader) (parsers.Source, error) {
	file, err := header.Open()
	if err != nil {
		return parsers.Source{}, errors.FileError(errors.CodeFileCorrupted, header.Filename, err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return parsers.Source{}, errors.FileError(errors.CodeFileCorrupted, header.Filename, err)
	}

	return parsers.Source{Name: header.Filename, Content: content}, nil
}

// writeError renders err with the status its category maps to
func (s *Server) writeError(c *gin.Context, err error) {
	auditErr := errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError, "audit failed")

	body := gin.H{
		"error": auditErr.Message,
		"code":  auditErr.Code,
	}
	if auditErr.Suggestion != "" {
		body["suggestion"] = auditErr.Suggestion
	}
	if missing, ok := auditErr.Context["missing_columns"]; ok {
		body["missing_columns"] = missing
	}

	status := auditErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logger.Fields{
			"code": auditErr.Code,
		}).Error("Audit failed")
	}

	c.JSON(status, body)
}
