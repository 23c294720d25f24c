// Package reconciler runs complete audits: it ingests charge files and the
// flight schedule, reconciles them and assembles the audit result.
//
// Steps of ProcessAudit, in order:
//  1. Parse every charge file (bounded concurrency, cancellable)
//  2. Reject the batch when no flight line could be extracted
//  3. Load and validate the schedule export
//  4. Reconcile charges against the schedule
//  5. Assemble the result under a fresh audit ID
//
// Example usage:
//
//	service, err := reconciler.NewAuditService(nil, nil, nil, nil)
//	result, err := service.ProcessAudit(ctx, &reconciler.AuditRequest{
//		ScheduleFile: "leon.xlsx",
//		ChargeFiles:  []string{"A2401.txt", "AIC2401.txt"},
//	})
package reconciler

import (
	"context"
	"fmt"
	"time"

	"airspace-charge-auditor/internal/matcher"
	"airspace-charge-auditor/internal/models"
	"airspace-charge-auditor/internal/parsers"
	"airspace-charge-auditor/pkg/errors"
	"airspace-charge-auditor/pkg/logger"

	"github.com/google/uuid"
)

// Config holds configuration options for the audit service
type Config struct {
	// MaxConcurrentFiles bounds how many charge files are parsed at once
	MaxConcurrentFiles int `json:"max_concurrent_files"`

	// ProgressReporting logs progress over the charge files
	ProgressReporting bool          `json:"progress_reporting"`
	ProgressInterval  time.Duration `json:"progress_interval"`
}

// DefaultConfig returns a default configuration for the audit service
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentFiles: 1,
		ProgressReporting:  false,
		ProgressInterval:   2 * time.Second,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("max concurrent files must be positive, got %d", c.MaxConcurrentFiles)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress interval cannot be negative")
	}
	return nil
}

// AuditRequest names the inputs of one audit. Each input is given either as a
// path or as in-memory content; in-memory content wins when both are set.
type AuditRequest struct {
	ScheduleFile string           `json:"schedule_file,omitempty"`
	ChargeFiles  []string         `json:"charge_files,omitempty"`
	Schedule     *parsers.Source  `json:"-"`
	Charges      []parsers.Source `json:"-"`
}

// Validate validates the audit request
func (r *AuditRequest) Validate() error {
	if r.Schedule == nil && r.ScheduleFile == "" {
		return errors.ValidationError(errors.CodeMissingField, "schedule_file", nil, nil).
			WithSuggestion("provide the flight schedule export")
	}
	if len(r.Charges) == 0 && len(r.ChargeFiles) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "charge_files", nil, nil).
			WithSuggestion("provide at least one charge file")
	}
	return nil
}

// chargeNames lists the charge inputs for messages and logs
func (r *AuditRequest) chargeNames() []string {
	if len(r.Charges) > 0 {
		names := make([]string, len(r.Charges))
		for i, source := range r.Charges {
			names[i] = source.Name
		}
		return names
	}
	return r.ChargeFiles
}

// AuditResult contains the complete result of one audit
type AuditResult struct {
	AuditID     string                `json:"audit_id"`
	ProcessedAt time.Time             `json:"processed_at"`
	Summary     *matcher.Summary      `json:"stats"`
	Records     []*models.AuditRecord `json:"data"`
	Unmatched   []*models.AuditRecord `json:"unmatched"`
	Stats       *ProcessingStats      `json:"processing"`
	Duration    time.Duration         `json:"-"`
}

// ProcessingStats contains detailed processing statistics
type ProcessingStats struct {
	ChargeFiles  []string                    `json:"charge_files"`
	ScheduleFile string                      `json:"schedule_file"`
	Charges      *parsers.ChargeParseStats   `json:"charges"`
	Schedule     *parsers.ScheduleParseStats `json:"schedule"`
	Index        matcher.IndexStats          `json:"index"`

	ParsingTime  time.Duration `json:"parsing_time"`
	MatchingTime time.Duration `json:"matching_time"`
	TotalTime    time.Duration `json:"total_time"`
}

// AuditService orchestrates the complete audit process
type AuditService struct {
	chargeParser   *parsers.ChargeFileParser
	scheduleParser *parsers.ScheduleParser
	engine         *matcher.Engine
	config         *Config
	logger         logger.Logger
	onProgress     func(logger.ProgressStats)
}

// NewAuditService creates an audit service. Nil arguments select the defaults
// of the respective component.
func NewAuditService(
	chargeConfig *parsers.ChargeParserConfig,
	scheduleConfig *parsers.ScheduleConfig,
	matchingConfig *matcher.MatchingConfig,
	config *Config,
) (*AuditService, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "audit", config.MaxConcurrentFiles, err)
	}

	chargeParser, err := parsers.NewChargeFileParser(chargeConfig)
	if err != nil {
		return nil, err
	}

	scheduleParser, err := parsers.NewScheduleParser(scheduleConfig)
	if err != nil {
		return nil, err
	}

	engine, err := matcher.NewEngine(matchingConfig)
	if err != nil {
		return nil, err
	}

	return &AuditService{
		chargeParser:   chargeParser,
		scheduleParser: scheduleParser,
		engine:         engine,
		config:         config,
		logger:         logger.GetGlobalLogger().WithComponent("reconciler"),
	}, nil
}

// GetConfiguration returns the current configuration
func (s *AuditService) GetConfiguration() *Config {
	return s.config
}

// OnProgress registers a callback invoked after each charge file is parsed.
// It only fires when progress reporting is enabled.
func (s *AuditService) OnProgress(callback func(logger.ProgressStats)) {
	s.onProgress = callback
}

// ProcessAudit performs the complete audit
func (s *AuditService) ProcessAudit(ctx context.Context, request *AuditRequest) (*AuditResult, error) {
	if request == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "request", nil, nil)
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	result := &AuditResult{
		AuditID:     uuid.New().String(),
		ProcessedAt: startTime.UTC(),
		Stats:       &ProcessingStats{ChargeFiles: request.chargeNames()},
	}
	log := s.logger.WithField("audit_id", result.AuditID)

	log.WithFields(logger.Fields{
		"charge_files": len(result.Stats.ChargeFiles),
	}).Info("Starting audit")

	// Step 1: charge files
	charges, chargeStats, err := s.parseCharges(ctx, request, log)
	if err != nil {
		return nil, err
	}
	result.Stats.Charges = chargeStats

	// Step 2: batch-empty check
	if len(charges) == 0 {
		log.WithField("lines_read", chargeStats.LinesRead).Warn("No flight lines found in charge files")
		return nil, errors.NoRecordsError(result.Stats.ChargeFiles, chargeStats.LinesRead)
	}

	// Step 3: schedule
	schedule, scheduleStats, scheduleName, err := s.loadSchedule(request)
	if err != nil {
		log.WithError(err).Error("Failed to load schedule")
		return nil, err
	}
	result.Stats.Schedule = scheduleStats
	result.Stats.ScheduleFile = scheduleName
	result.Stats.ParsingTime = time.Since(startTime)

	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeCancelled, "audit", err)
	}

	// Step 4: reconciliation
	matchStart := time.Now()
	reconciliation, err := s.engine.Reconcile(charges, schedule)
	if err != nil {
		return nil, err
	}
	result.Stats.MatchingTime = time.Since(matchStart)

	// Step 5: result
	result.Summary = reconciliation.Summary
	result.Records = reconciliation.Records
	result.Unmatched = reconciliation.Unmatched()
	if result.Unmatched == nil {
		result.Unmatched = []*models.AuditRecord{}
	}
	result.Stats.Index = reconciliation.Index
	result.Duration = time.Since(startTime)
	result.Stats.TotalTime = result.Duration

	log.WithFields(logger.Fields{
		"total_rows":   result.Summary.TotalRecords,
		"matched_rows": result.Summary.MatchedRecords,
		"total_amount": result.Summary.TotalAmount.StringFixed(2),
		"duration":     result.Duration.String(),
	}).Info("Audit completed")

	return result, nil
}

func (s *AuditService) parseCharges(ctx context.Context, request *AuditRequest, log logger.Logger) ([]*models.ChargeRecord, *parsers.ChargeParseStats, error) {
	sources := request.Charges
	if len(sources) == 0 {
		sources = make([]parsers.Source, 0, len(request.ChargeFiles))
		for _, path := range request.ChargeFiles {
			if err := ctx.Err(); err != nil {
				return nil, nil, errors.InternalError(errors.CodeCancelled, "read charge files", err)
			}
			source, err := parsers.ReadSource(path)
			if err != nil {
				return nil, nil, err
			}
			sources = append(sources, source)
		}
	}

	parser := parsers.NewConcurrentParser(s.chargeParser, s.config.MaxConcurrentFiles)

	var tracker *logger.ProgressTracker
	if s.config.ProgressReporting {
		tracker = logger.NewProgressTracker(logger.ProgressConfig{
			Operation:   "parse charge files",
			Total:       int64(len(sources)),
			LogInterval: s.config.ProgressInterval,
			Logger:      log,
			OnUpdate:    s.onProgress,
		})
		parser.OnParsed(func(*parsers.ConcurrentParseResult) {
			tracker.Increment()
		})
	}

	charges, stats, err := parser.ParseSources(ctx, sources)
	if tracker != nil {
		if err != nil {
			tracker.CompleteWithError(err)
		} else {
			tracker.Complete()
		}
	}
	if err != nil {
		return nil, nil, err
	}

	log.WithFields(logger.Fields{
		"files":   stats.Files,
		"lines":   stats.LinesRead,
		"records": stats.RecordsParsed,
		"skipped": stats.Skipped(),
	}).Info("Parsed charge files")

	return charges, stats, nil
}

func (s *AuditService) loadSchedule(request *AuditRequest) ([]*models.ScheduleRecord, *parsers.ScheduleParseStats, string, error) {
	if request.Schedule != nil {
		rows, stats, err := s.scheduleParser.ParseContent(request.Schedule.Name, request.Schedule.Content)
		return rows, stats, request.Schedule.Name, err
	}

	rows, stats, err := s.scheduleParser.ParseFile(request.ScheduleFile)
	return rows, stats, request.ScheduleFile, err
}
