package pages

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stavweb/audit"
	"stavweb/cache"
	"stavweb/models"
	"stavweb/render"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 500
)

type PagesModule struct {
	service  *Service
	audit    *audit.AuditModule
	cache    cache.Store
	cacheTTL time.Duration
}

func NewPagesModule(db *gorm.DB, auditModule *audit.AuditModule) *PagesModule {
	return &PagesModule{
		service: NewService(db),
		audit:   auditModule,
	}
}

// UseCache enables response caching of GET /pages/:slug. Every mutation of a
// page drops its cached entry.
func (p *PagesModule) UseCache(store cache.Store, ttl time.Duration) {
	p.cache = store
	p.cacheTTL = ttl
}

// RegisterRoutes mounts the page API. The guard handlers run in front of every
// route that changes state.
func (p *PagesModule) RegisterRoutes(router gin.IRouter, guard ...gin.HandlerFunc) {
	guarded := func(h gin.HandlerFunc) []gin.HandlerFunc {
		chain := make([]gin.HandlerFunc, 0, len(guard)+1)
		chain = append(chain, guard...)
		return append(chain, h)
	}

	pagesGroup := router.Group("/pages")
	{
		pagesGroup.GET("", p.list)
		pagesGroup.POST("", guarded(p.create)...)

		pagesGroup.GET("/:slug", p.cached(), p.get)
		pagesGroup.PUT("/:slug", guarded(p.update)...)
		pagesGroup.DELETE("/:slug", guarded(p.delete)...)

		pagesGroup.GET("/:slug/versions", p.versions)
		pagesGroup.GET("/:slug/versions/:version", p.version)
		pagesGroup.PUT("/:slug/versions/:version", guarded(p.setCurrent)...)
		pagesGroup.POST("/:slug/versions/:version/restore", guarded(p.restore)...)

		pagesGroup.GET("/:slug/events", guarded(p.events)...)
	}
}

func (p *PagesModule) cached() gin.HandlerFunc {
	return func(c *gin.Context) {
		if p.cache == nil {
			c.Next()
			return
		}
		cache.Middleware(p.cache, p.cacheTTL, func(c *gin.Context) string {
			return cache.PageKey(c.Param("slug"))
		})(c)
	}
}

func (p *PagesModule) invalidate(c *gin.Context, slug string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Delete(c.Request.Context(), cache.PageKey(slug)); err != nil {
		slog.Warn("error invalidating page cache", "slug", slug, "error", err)
	}
}

func (p *PagesModule) list(c *gin.Context) {
	pages, err := p.service.ListPages(c.Request.Context())
	if err != nil {
		p.fail(c, err, "Nepodařilo se načíst stránky")
		return
	}
	c.JSON(http.StatusOK, pages)
}

func (p *PagesModule) create(c *gin.Context) {
	var request struct {
		Slug        string          `json:"slug"`
		Name        string          `json:"name"`
		Description *string         `json:"description"`
		Config      models.Document `json:"config"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Neplatný formát požadavku"})
		return
	}

	page, err := p.service.CreatePage(c.Request.Context(), CreatePageInput{
		Slug:        request.Slug,
		Name:        request.Name,
		Description: request.Description,
		Config:      request.Config,
	})
	if err != nil {
		p.fail(c, err, "Nepodařilo se vytvořit stránku")
		return
	}

	first := 1
	p.audit.Track(c, page.Slug, audit.EventPageCreated, &first, "")
	p.invalidate(c, page.Slug)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      page.ID,
		"slug":    page.Slug,
	})
}

func (p *PagesModule) get(c *gin.Context) {
	view, err := p.service.GetCurrent(c.Request.Context(), c.Param("slug"))
	if err != nil {
		p.fail(c, err, "Nepodařilo se načíst konfiguraci stránky")
		return
	}

	descriptionHTML := ""
	if view.Description != nil {
		descriptionHTML = render.Markdown(*view.Description)
	}

	c.JSON(http.StatusOK, struct {
		*CurrentView
		DescriptionHTML string `json:"description_html"`
	}{view, descriptionHTML})
}

func (p *PagesModule) update(c *gin.Context) {
	slug := c.Param("slug")

	var request struct {
		Name             *string               `json:"name"`
		Description      models.OptionalString `json:"description"`
		Config           models.Document       `json:"config"`
		CreateNewVersion bool                  `json:"createNewVersion"`
	}
	if err := bindOptionalJSON(c, &request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Neplatný formát požadavku"})
		return
	}

	result, err := p.service.UpdatePage(c.Request.Context(), slug, UpdatePageInput{
		Name:             request.Name,
		Description:      request.Description,
		Config:           request.Config,
		CreateNewVersion: request.CreateNewVersion,
	})
	if err != nil {
		p.fail(c, err, "Nepodařilo se aktualizovat stránku")
		return
	}
	p.invalidate(c, slug)

	switch result.Outcome {
	case VersionCreated:
		p.audit.Track(c, slug, audit.EventVersionCreated, &result.Version, "")
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Stránka byla aktualizována s novou verzí",
			"version": result.Version,
		})
	case ConfigOverwritten:
		p.audit.Track(c, slug, audit.EventConfigOverwritten, &result.Version, "")
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Konfigurace stránky byla aktualizována",
		})
	default:
		if request.Name != nil || request.Description.Set {
			p.audit.Track(c, slug, audit.EventPageUpdated, nil, "")
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Stránka byla aktualizována",
		})
	}
}

func (p *PagesModule) delete(c *gin.Context) {
	slug := c.Param("slug")

	deleted, err := p.service.DeletePage(c.Request.Context(), slug)
	if err != nil {
		p.fail(c, err, "Nepodařilo se smazat stránku")
		return
	}

	if deleted {
		p.audit.Track(c, slug, audit.EventPageDeleted, nil, "")
		p.invalidate(c, slug)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Stránka byla smazána",
		"deleted": deleted,
	})
}

func (p *PagesModule) versions(c *gin.Context) {
	versions, err := p.service.ListVersions(c.Request.Context(), c.Param("slug"))
	if err != nil {
		p.fail(c, err, "Nepodařilo se načíst verze stránky")
		return
	}
	c.JSON(http.StatusOK, versions)
}

func (p *PagesModule) version(c *gin.Context) {
	number, ok := parseVersion(c)
	if !ok {
		return
	}

	view, err := p.service.GetVersion(c.Request.Context(), c.Param("slug"), number)
	if err != nil {
		p.fail(c, err, "Nepodařilo se načíst verzi stránky")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (p *PagesModule) setCurrent(c *gin.Context) {
	slug := c.Param("slug")
	number, ok := parseVersion(c)
	if !ok {
		return
	}

	if err := p.service.SetCurrentVersion(c.Request.Context(), slug, number); err != nil {
		p.fail(c, err, rootMessage(err))
		return
	}

	p.audit.Track(c, slug, audit.EventVersionPromoted, &number, "")
	p.invalidate(c, slug)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Verze %d byla nastavena jako aktuální", number),
	})
}

func (p *PagesModule) restore(c *gin.Context) {
	slug := c.Param("slug")
	number, ok := parseVersion(c)
	if !ok {
		return
	}

	var request struct {
		CreatedBy string `json:"created_by"`
	}
	if err := bindOptionalJSON(c, &request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Neplatný formát požadavku"})
		return
	}

	result, err := p.service.RestoreVersion(c.Request.Context(), slug, number, request.CreatedBy)
	if err != nil {
		p.fail(c, err, rootMessage(err))
		return
	}

	p.audit.Track(c, slug, audit.EventVersionRestored, &result.Version, RestoredFrom(result.From))
	p.invalidate(c, slug)

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Verze %d byla úspěšně obnovena jako verze %d", result.From, result.Version),
		"version": result.Version,
	})
}

func (p *PagesModule) events(c *gin.Context) {
	if p.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Historie změn není k dispozici"})
		return
	}

	limit := defaultEventsLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = min(n, maxEventsLimit)
		}
	}

	events, err := p.audit.ListBySlug(c.Param("slug"), limit)
	if err != nil {
		p.fail(c, err, "Nepodařilo se načíst historii změn")
		return
	}
	c.JSON(http.StatusOK, events)
}

// fail answers with the status belonging to err. Errors the client can act on
// get a fixed message; everything else answers with message and is logged.
func (p *PagesModule) fail(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, ErrPageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Stránka nenalezena"})
	case errors.Is(err, ErrVersionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Verze nenalezena"})
	case errors.Is(err, ErrInvalidVersionNumber):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Neplatné číslo verze"})
	case errors.Is(err, ErrMissingRequiredField):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Chybí povinné parametry: slug, name"})
	case errors.Is(err, ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Stránka s tímto slugem již existuje"})
	case IsIntegrityError(err):
		slog.Error("page data breaks an integrity rule", "path", c.FullPath(), "slug", c.Param("slug"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	default:
		slog.Error("page request failed", "path", c.FullPath(), "slug", c.Param("slug"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

// rootMessage returns the innermost error text, the store's own message.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func parseVersion(c *gin.Context) (int, bool) {
	number, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Neplatné číslo verze"})
		return 0, false
	}
	return number, true
}

// bindOptionalJSON binds a JSON body when one is sent. A missing or empty
// body leaves obj untouched.
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
