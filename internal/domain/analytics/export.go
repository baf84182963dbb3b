package analytics

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jmcoleman/codescribe-backend/internal/domain/events"
	"github.com/jmcoleman/codescribe-backend/pkg/logger"
)

// Default export bounds. Overridable through configuration.
const (
	DefaultExportMaxRows       = 100000
	DefaultExportBatchSize     = 1000
	DefaultExportMaxWindowDays = 90
)

// Fixed CSV columns, emitted before the discovered payload columns.
var exportFixedColumns = []string{
	"id",
	"event_name",
	"category",
	"action",
	"origin",
	"session_id",
	"user_id",
	"user_email",
	"ip_address",
	"is_internal",
	"created_at",
}

// Top-level payload keys promoted to fixed columns; the schema discovery
// pass skips them.
var promotedPayloadKeys = map[string]struct{}{
	"action": {},
	"origin": {},
}

// payloadColumnPrefix disambiguates discovered columns from fixed ones.
const payloadColumnPrefix = "payload."

// ExportConfig bounds one export run.
type ExportConfig struct {
	MaxRows       int
	BatchSize     int
	MaxWindowDays int
}

func (c ExportConfig) withDefaults() ExportConfig {
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultExportMaxRows
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultExportBatchSize
	}
	if c.MaxWindowDays <= 0 {
		c.MaxWindowDays = DefaultExportMaxWindowDays
	}
	return c
}

// Exporter streams a filtered event slice as CSV in two passes: schema
// discovery over payload paths, then bounded batch streaming. Output is
// byte-identical across runs for an unchanged log and identical filters.
type Exporter struct {
	repo events.Repository
	cfg  ExportConfig
	log  *logger.Logger
}

func NewExporter(repo events.Repository, cfg ExportConfig, log *logger.Logger) *Exporter {
	return &Exporter{repo: repo, cfg: cfg.withDefaults(), log: log}
}

// Stream writes the CSV header and data lines to w. It rejects windows
// over the configured span before the discovery pass begins, and stops at
// the row ceiling without erroring on volume.
func (e *Exporter) Stream(ctx context.Context, filter events.Filter, w io.Writer) error {
	maxWindow := time.Duration(e.cfg.MaxWindowDays) * 24 * time.Hour
	if filter.End.Sub(filter.Start) > maxWindow {
		return ErrExportWindowTooLarge
	}

	paths, err := e.discoverPaths(ctx, filter)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)

	header := make([]string, 0, len(exportFixedColumns)+len(paths))
	header = append(header, exportFixedColumns...)
	for _, path := range paths {
		header = append(header, payloadColumnPrefix+path)
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	written := 0
	for offset := 0; written < e.cfg.MaxRows; offset += e.cfg.BatchSize {
		batch, err := e.repo.FetchExportBatch(ctx, filter, offset, e.cfg.BatchSize)
		if err != nil {
			return err
		}

		for _, row := range batch {
			if written >= e.cfg.MaxRows {
				break
			}
			record, err := e.renderRow(row, paths)
			if err != nil {
				return err
			}
			if err := writer.Write(record); err != nil {
				return err
			}
			written++
		}

		if len(batch) < e.cfg.BatchSize {
			break
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	e.log.Info("analytics export completed",
		zap.Int("rows", written),
		zap.Int("payload_columns", len(paths)),
	)
	return nil
}

// discoverPaths is pass one: walk every matching payload and collect the
// distinct leaf paths, bounded by the same batch size and row ceiling as
// the streaming pass.
func (e *Exporter) discoverPaths(ctx context.Context, filter events.Filter) ([]string, error) {
	seen := make(map[string]struct{})

	scanned := 0
	for offset := 0; scanned < e.cfg.MaxRows; offset += e.cfg.BatchSize {
		batch, err := e.repo.FetchExportBatch(ctx, filter, offset, e.cfg.BatchSize)
		if err != nil {
			return nil, err
		}

		for _, row := range batch {
			if scanned >= e.cfg.MaxRows {
				break
			}
			paths, err := events.FlattenPaths(row.Payload, promotedPayloadKeys)
			if err != nil {
				// A malformed payload should not sink the whole export.
				e.log.Warn("skipping unparseable payload during schema discovery",
					zap.String("event_id", row.ID.String()),
					zap.Error(err),
				)
				scanned++
				continue
			}
			for _, path := range paths {
				seen[path] = struct{}{}
			}
			scanned++
		}

		if len(batch) < e.cfg.BatchSize {
			break
		}
	}

	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

func (e *Exporter) renderRow(row events.ExportRow, paths []string) ([]string, error) {
	flat, err := events.FlattenPayload(row.Payload, promotedPayloadKeys)
	if err != nil {
		flat = map[string]string{}
	}

	userID := ""
	if row.UserID != nil {
		userID = row.UserID.String()
	}

	record := make([]string, 0, len(exportFixedColumns)+len(paths))
	record = append(record,
		row.ID.String(),
		row.EventName,
		string(row.Category),
		events.TopLevelString(row.Payload, "action"),
		events.TopLevelString(row.Payload, "origin"),
		row.SessionID,
		userID,
		row.UserEmail,
		row.IPAddress,
		strconv.FormatBool(row.IsInternal),
		row.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	for _, path := range paths {
		record = append(record, flat[path])
	}
	return record, nil
}
