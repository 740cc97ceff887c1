package audit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mileusna/useragent"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	EventPageCreated       = "page_created"
	EventPageUpdated       = "page_updated"
	EventConfigOverwritten = "config_overwritten"
	EventVersionCreated    = "version_created"
	EventVersionPromoted   = "version_promoted"
	EventVersionRestored   = "version_restored"
	EventPageDeleted       = "page_deleted"
)

// PageEvent records one editor operation against a page. Slugs are stored
// rather than page ids so the trail outlives deleted pages.
type PageEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PageSlug  string    `gorm:"not null;index" json:"page_slug"`
	Event     string    `gorm:"not null;index" json:"event"`
	Version   *int      `json:"version"`
	Detail    string    `gorm:"type:text" json:"detail,omitempty"`
	IP        string    `gorm:"not null" json:"ip"`
	Browser   *string   `json:"browser"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// AuditModule writes the editor audit trail to its own database. A nil
// *AuditModule is valid and records nothing.
type AuditModule struct {
	db      *gorm.DB
	pending sync.WaitGroup
	cron    *cron.Cron
}

// NewAuditModule migrates the events table. It returns nil, disabling the
// audit log, when db is nil or the migration fails.
func NewAuditModule(db *gorm.DB) *AuditModule {
	if db == nil {
		slog.Info("audit db is nil, audit log disabled")
		return nil
	}

	if err := db.AutoMigrate(&PageEvent{}); err != nil {
		slog.Error("error migrating page_events table", "error", err)
		return nil
	}

	slog.Info("audit module initialized")
	return &AuditModule{db: db}
}

// Track records an event for the current request without blocking it.
// Failures are logged and never reach the caller. The address comes from
// c.ClientIP, so forwarding headers count only behind the engine's trusted
// proxies.
func (a *AuditModule) Track(c *gin.Context, slug, event string, version *int, detail string) {
	if a == nil || a.db == nil {
		return
	}

	ev := PageEvent{
		PageSlug:  slug,
		Event:     event,
		Version:   version,
		Detail:    detail,
		IP:        c.ClientIP(),
		Browser:   extractBrowser(c.Request.UserAgent()),
		CreatedAt: time.Now(),
	}

	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		if err := a.Record(&ev); err != nil {
			slog.Error("error saving audit event", "slug", slug, "event", event, "error", err)
		}
	}()
}

// Record writes an event synchronously.
func (a *AuditModule) Record(ev *PageEvent) error {
	if a == nil || a.db == nil {
		return nil
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	return a.db.Create(ev).Error
}

// Wait blocks until every event passed to Track has been written.
func (a *AuditModule) Wait() {
	if a == nil {
		return
	}
	a.pending.Wait()
}

// ListBySlug returns the newest events for a slug, at most limit of them.
func (a *AuditModule) ListBySlug(slug string, limit int) ([]PageEvent, error) {
	events := []PageEvent{}
	if a == nil || a.db == nil {
		return events, nil
	}

	err := a.db.Where("page_slug = ?", slug).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// CountBySlug returns how many events exist for a slug, optionally of one type.
func (a *AuditModule) CountBySlug(slug, event string) (int64, error) {
	if a == nil || a.db == nil {
		return 0, nil
	}

	var count int64
	query := a.db.Model(&PageEvent{}).Where("page_slug = ?", slug)
	if event != "" {
		query = query.Where("event = ?", event)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting events of %s: %w", slug, err)
	}
	return count, nil
}

// Prune deletes events older than maxAge and returns how many were removed.
func (a *AuditModule) Prune(maxAge time.Duration) (int64, error) {
	if a == nil || a.db == nil {
		return 0, nil
	}

	res := a.db.Where("created_at < ?", time.Now().Add(-maxAge)).Delete(&PageEvent{})
	return res.RowsAffected, res.Error
}

// StartRetention prunes events older than maxAge every night at 03:30.
// A zero maxAge keeps events forever.
func (a *AuditModule) StartRetention(maxAge time.Duration) {
	if a == nil || maxAge <= 0 {
		return
	}

	a.cron = cron.New()
	_, _ = a.cron.AddFunc("30 3 * * *", func() {
		removed, err := a.Prune(maxAge)
		if err != nil {
			slog.Error("audit retention cleanup failed", "error", err)
			return
		}
		slog.Info("audit retention cleanup done", "removed", removed)
	})
	a.cron.Start()
	slog.Debug("audit retention job started", "max_age", maxAge)
}

// Stop halts the retention job and waits for pending writes.
func (a *AuditModule) Stop() {
	if a == nil {
		return
	}
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	a.pending.Wait()
}

// extractBrowser maps a User-Agent to a browser family
func extractBrowser(userAgent string) *string {
	if userAgent == "" {
		return nil
	}

	ua := useragent.Parse(userAgent)
	browser := ua.Name
	if browser == "" {
		browser = "Other"
	}
	if ua.Bot {
		browser += " (bot)"
	}
	return &browser
}
