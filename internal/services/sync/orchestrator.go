package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"transaction-sync-backend/internal/models"
	"transaction-sync-backend/internal/repository"
	"transaction-sync-backend/internal/services/normalize"
	"transaction-sync-backend/internal/services/reconcile"
	"transaction-sync-backend/internal/services/upstream"
)

// Stats accumulates the outcome of one source sync pass.
type Stats struct {
	Inserted     int `json:"inserted"`
	Updated      int `json:"updated"`
	Skipped      int `json:"skipped"`
	Errors       int `json:"errors"`
	PagesFetched int `json:"pages_fetched"`
}

// PageFetcher is the slice of the upstream client the orchestrator drives.
type PageFetcher interface {
	FetchPage(ctx context.Context, page, size int) (*upstream.Page, error)
}

// Source pairs a source identity with its credentialed client.
type Source struct {
	ID     models.SourceID
	Client PageFetcher
}

type OrchestratorConfig struct {
	PageSize  int
	MaxPages  int
	PageDelay DelayRange

	// Backfill walks much deeper into history and therefore paces itself
	// more conservatively.
	BackfillMaxPages  int
	BackfillPageDelay DelayRange
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		PageSize:          15,
		MaxPages:          2,
		PageDelay:         DelayRange{Min: 5 * time.Second, Max: 10 * time.Second},
		BackfillMaxPages:  200,
		BackfillPageDelay: DelayRange{Min: 15 * time.Second, Max: 25 * time.Second},
	}
}

// Orchestrator drives one full sync pass for one source: fetch, normalize,
// reconcile, persist, count.
type Orchestrator struct {
	cfg     OrchestratorConfig
	records repository.TransactionRecords
	delayer Delayer
	logger  *zap.Logger
}

func NewOrchestrator(cfg OrchestratorConfig, records repository.TransactionRecords, delayer Delayer, logger *zap.Logger) *Orchestrator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 15
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 2
	}
	return &Orchestrator{cfg: cfg, records: records, delayer: delayer, logger: logger}
}

// SyncSource fetches up to MaxPages pages for the source and reconciles each
// record. A fetch failure on page 1 aborts the source for this cycle; on any
// later page it is treated as end-of-data. A failing record never aborts the
// batch.
func (o *Orchestrator) SyncSource(ctx context.Context, src Source) Stats {
	var stats Stats
	log := o.logger.With(zap.String("source", string(src.ID)))
	log.Info("syncing source")

	for page := 1; page <= o.cfg.MaxPages; page++ {
		p, err := src.Client.FetchPage(ctx, page, o.cfg.PageSize)
		if err != nil {
			if page == 1 {
				stats.Errors++
				log.Error("sync aborted, first page fetch failed", zap.Error(err))
				return stats
			}
			log.Warn("page fetch failed, treating as end of data",
				zap.Int("page", page), zap.Error(err))
			break
		}
		stats.PagesFetched++

		for _, raw := range p.Records {
			o.processRecord(ctx, src.ID, raw, &stats, log)
		}

		// A short page means there is nothing further upstream.
		if len(p.Records) < o.cfg.PageSize {
			break
		}
		if page < o.cfg.MaxPages {
			if err := o.delayer.Wait(ctx, o.cfg.PageDelay); err != nil {
				log.Warn("sync interrupted between pages", zap.Error(err))
				return stats
			}
		}
	}

	log.Info("source sync completed",
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
		zap.Int("pages", stats.PagesFetched))
	return stats
}

func (o *Orchestrator) processRecord(ctx context.Context, source models.SourceID, raw upstream.RawRecord, stats *Stats, log *zap.Logger) {
	record, issues := normalize.Normalize(raw, source)
	if len(issues) > 0 {
		stats.Errors++
		for _, issue := range issues {
			log.Warn("normalization degraded",
				zap.String("external_id", record.ExternalID),
				zap.String("field", issue.Field),
				zap.String("reason", issue.Reason))
		}
	}
	if record.ExternalID == "" {
		stats.Errors++
		log.Error("record has no external id, dropped")
		return
	}

	existing, err := o.records.FindByExternalID(ctx, source, record.ExternalID)
	if err != nil {
		stats.Errors++
		log.Error("record lookup failed",
			zap.String("external_id", record.ExternalID), zap.Error(err))
		return
	}

	action := reconcile.Reconcile(record, existing)
	switch action.Op {
	case reconcile.OpInsert:
		if err := o.records.Insert(ctx, &record); err != nil {
			stats.Errors++
			log.Error("insert failed",
				zap.String("external_id", record.ExternalID), zap.Error(err))
			return
		}
		stats.Inserted++
		log.Info("inserted transaction", zap.String("external_id", record.ExternalID))
	case reconcile.OpUpdate:
		if err := o.records.Update(ctx, source, record.ExternalID, action.Fields); err != nil {
			stats.Errors++
			log.Error("update failed",
				zap.String("external_id", record.ExternalID), zap.Error(err))
			return
		}
		stats.Updated++
		if _, ok := action.Fields["status"]; ok {
			log.Info("status transition",
				zap.String("external_id", record.ExternalID),
				zap.String("from", string(existing.Status)),
				zap.String("to", string(record.Status)))
		}
		log.Info("updated transaction",
			zap.String("external_id", record.ExternalID),
			zap.Int("fields", len(action.Fields)))
	case reconcile.OpSkip:
		stats.Skipped++
	}
}

// BackfillStats accumulates the outcome of one backfill pass.
type BackfillStats struct {
	Missing   int `json:"missing"`
	Checked   int `json:"checked"`
	Updated   int `json:"updated"`
	Remaining int `json:"remaining"`
	Errors    int `json:"errors"`
}

// BackfillAmounts walks upstream pages looking for stored records whose
// amount is still zero and fills them in. A stored non-zero amount is never
// touched, and an upstream zero is never written.
func (o *Orchestrator) BackfillAmounts(ctx context.Context, src Source) (BackfillStats, error) {
	var stats BackfillStats
	log := o.logger.With(zap.String("source", string(src.ID)))

	missing, err := o.records.FindMissingAmounts(ctx, src.ID)
	if err != nil {
		return stats, fmt.Errorf("list missing amounts: %w", err)
	}
	stats.Missing = len(missing)
	if len(missing) == 0 {
		log.Info("backfill: no records with missing amounts")
		return stats, nil
	}

	pending := make(map[string]struct{}, len(missing))
	for _, record := range missing {
		pending[record.ExternalID] = struct{}{}
	}
	seen := make(map[string]struct{})

	for page := 1; page <= o.cfg.BackfillMaxPages && len(pending) > 0; page++ {
		p, err := src.Client.FetchPage(ctx, page, o.cfg.PageSize)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				stats.Remaining = len(pending)
				return stats, err
			}
			log.Warn("backfill page fetch failed, stopping",
				zap.Int("page", page), zap.Error(err))
			break
		}

		for _, raw := range p.Records {
			record, _ := normalize.Normalize(raw, src.ID)
			if record.ExternalID == "" {
				continue
			}
			if _, dup := seen[record.ExternalID]; dup {
				continue
			}
			seen[record.ExternalID] = struct{}{}
			stats.Checked++

			if _, wanted := pending[record.ExternalID]; !wanted {
				continue
			}
			if !record.Amount.IsPositive() {
				continue
			}

			fields := map[string]any{
				"amount":      record.Amount,
				"status":      record.Status,
				"status_code": record.StatusCode,
				"updated_at":  time.Now().UTC(),
			}
			if record.Reference != "" {
				fields["reference"] = record.Reference
			}
			if record.SettledAt != nil {
				fields["settled_at"] = record.SettledAt
			}

			if err := o.records.Update(ctx, src.ID, record.ExternalID, fields); err != nil {
				stats.Errors++
				log.Error("backfill update failed",
					zap.String("external_id", record.ExternalID), zap.Error(err))
				continue
			}
			delete(pending, record.ExternalID)
			stats.Updated++
			log.Info("backfilled amount",
				zap.String("external_id", record.ExternalID),
				zap.String("amount", record.Amount.String()))
		}

		if len(p.Records) < o.cfg.PageSize || len(pending) == 0 {
			break
		}
		if err := o.delayer.Wait(ctx, o.cfg.BackfillPageDelay); err != nil {
			stats.Remaining = len(pending)
			return stats, err
		}
	}

	stats.Remaining = len(pending)
	log.Info("backfill completed",
		zap.Int("missing", stats.Missing),
		zap.Int("checked", stats.Checked),
		zap.Int("updated", stats.Updated),
		zap.Int("remaining", stats.Remaining),
		zap.Int("errors", stats.Errors))
	return stats, nil
}
