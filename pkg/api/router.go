// Package api expose la lecture des segments RFV aux consommateurs (UI, CRM).
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rfv-segments/pkg/database"
	"rfv-segments/pkg/models"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Reader est la partie lecture du store ; *database.Store l'implémente.
type Reader interface {
	QueryCustomers(ctx context.Context, f database.CustomerFilter) ([]models.CustomerRFVRecord, error)
	SegmentCounts(ctx context.Context) (map[models.Segment]int, error)
	ListUploadLogs(ctx context.Context, limit int) ([]models.UploadLog, error)
}

// NewHandler construit le routeur gin enveloppé par le middleware CORS.
func NewHandler(r Reader, origins []string, production bool) http.Handler {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	h := &handlers{r: r}
	router.GET("/health", h.health)
	router.GET("/customers", h.customers)
	router.GET("/segments", h.segments)
	router.GET("/uploads", h.uploads)

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(router)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Debug("api: request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

type handlers struct {
	r Reader
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *handlers) customers(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recs, err := h.r.QueryCustomers(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	if recs == nil {
		recs = []models.CustomerRFVRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"customers": recs, "count": len(recs), "limit": f.Limit, "offset": f.Offset})
}

type segmentView struct {
	Segment  models.Segment `json:"segment"`
	Priority int            `json:"priority"`
	Count    int            `json:"count"`
}

func (h *handlers) segments(c *gin.Context) {
	counts, err := h.r.SegmentCounts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]segmentView, 0, len(models.Segments))
	for _, s := range models.Segments {
		out = append(out, segmentView{Segment: s, Priority: s.Priority(), Count: counts[s]})
	}
	c.JSON(http.StatusOK, gin.H{"segments": out})
}

func (h *handlers) uploads(c *gin.Context) {
	limit, err := intParam(c, "limit", 20)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logs, err := h.r.ListUploadLogs(c.Request.Context(), min(limit, maxLimit))
	if err != nil {
		h.fail(c, err)
		return
	}
	if logs == nil {
		logs = []models.UploadLog{}
	}
	c.JSON(http.StatusOK, gin.H{"uploads": logs})
}

func (h *handlers) fail(c *gin.Context, err error) {
	zap.L().Error("api: storage error", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
}

// parseFilter traduit la query string en database.CustomerFilter.
func parseFilter(c *gin.Context) (database.CustomerFilter, error) {
	var f database.CustomerFilter

	if raw := strings.TrimSpace(c.Query("segment")); raw != "" {
		seg, ok := models.ParseSegment(raw)
		if !ok {
			return f, eris.Errorf("unknown segment %q", raw)
		}
		f.Segment = seg
	}

	var err error
	if f.MinValue, err = decimalParam(c, "min_value"); err != nil {
		return f, err
	}
	if f.MaxValue, err = decimalParam(c, "max_value"); err != nil {
		return f, err
	}
	if f.MinDays, err = optionalIntParam(c, "min_days"); err != nil {
		return f, err
	}
	if f.MaxDays, err = optionalIntParam(c, "max_days"); err != nil {
		return f, err
	}
	if f.From, err = dateParam(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = dateParam(c, "to"); err != nil {
		return f, err
	}

	sort, ok := database.ParseSortField(c.Query("sort"))
	if !ok {
		return f, eris.Errorf("invalid sort %q (value|ticket|purchases|recency|name)", c.Query("sort"))
	}
	f.Sort = sort
	switch strings.ToLower(c.DefaultQuery("order", "asc")) {
	case "asc":
	case "desc":
		f.Desc = true
	default:
		return f, eris.Errorf("invalid order %q (asc|desc)", c.Query("order"))
	}

	if f.Limit, err = intParam(c, "limit", defaultLimit); err != nil {
		return f, err
	}
	f.Limit = min(f.Limit, maxLimit)
	if f.Offset, err = intParam(c, "offset", 0); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(c *gin.Context, key string, def int) (int, error) {
	n, err := optionalIntParam(c, key)
	if err != nil || n == nil {
		return def, err
	}
	return *n, nil
}

func optionalIntParam(c *gin.Context, key string) (*int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, eris.Errorf("%s: non-negative integer expected, got %q", key, raw)
	}
	return &n, nil
}

func decimalParam(c *gin.Context, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, eris.Errorf("%s: number expected, got %q", key, raw)
	}
	return &d, nil
}

func dateParam(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, eris.Errorf("%s: date YYYY-MM-DD expected, got %q", key, raw)
	}
	return &t, nil
}
