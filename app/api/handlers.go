package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/huanchen1107/TawinCWA/app/cfg"
	"github.com/huanchen1107/TawinCWA/app/database"
	"github.com/huanchen1107/TawinCWA/app/fetch"
	"github.com/huanchen1107/TawinCWA/app/service"
	"github.com/huanchen1107/TawinCWA/app/source"
	"github.com/huanchen1107/TawinCWA/app/tasks"
)

const (
	defaultSearchLimit = 20
	defaultDaysBack    = 7
)

func NewHandler(svc DataService, configs SourceConfigs, scheduler tasks.TaskSchedulerInterface, retentionDays int) *Handler {
	return &Handler{
		svc:           svc,
		configs:       configs,
		scheduler:     scheduler,
		retentionDays: retentionDays,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   cfg.GetVersion(),
		"sources":   h.svc.Sources(),
	}

	if h.scheduler != nil {
		health["scheduler"] = h.scheduler.Health()
	}

	c.JSON(http.StatusOK, health)
}

// APIListSources lists the registered sources along with every loaded
// configuration, disabled ones included.
func (h *Handler) APIListSources(c *gin.Context) {
	sources := h.svc.Sources()

	configs := []gin.H{}
	if h.configs != nil {
		all := h.configs.GetConfigs()
		names := make([]string, 0, len(all))
		for name := range all {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			configs = append(configs, configInfo(all[name]))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"total":   len(sources),
		"configs": configs,
	})
}

func (h *Handler) APIGetSource(c *gin.Context) {
	sourceName := c.Param("source")
	if h.configs == nil {
		respondError(c, "get_source", fmt.Errorf("%w: %s", source.ErrUnknownSource, sourceName))
		return
	}

	config, err := h.configs.GetConfig(sourceName)
	if err != nil {
		respondError(c, "get_source", err)
		return
	}

	info := configInfo(config)
	info["registered"] = slices.Contains(h.svc.Sources(), sourceName)
	c.JSON(http.StatusOK, info)
}

// configInfo never includes the API key.
func configInfo(config *source.Config) gin.H {
	return gin.H{
		"name":        config.Name,
		"type":        config.Type,
		"enabled":     config.Enabled,
		"base_url":    config.BaseURL,
		"format":      config.Format,
		"rate_limit":  config.RateLimit,
		"max_results": config.MaxResults,
	}
}

func (h *Handler) APISearch(c *gin.Context) {
	sourceName := c.Query("source")
	if sourceName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing source parameter"})
		return
	}

	limit, err := intQuery(c, "limit", defaultSearchLimit)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
		return
	}

	descriptors, err := h.svc.Search(c.Request.Context(), sourceName, c.Query("q"), c.Query("category"), limit)
	if err != nil {
		respondError(c, "search", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source":   sourceName,
		"datasets": descriptors,
		"total":    len(descriptors),
	})
}

func (h *Handler) APIGetDataset(c *gin.Context) {
	sourceName, datasetID := c.Param("source"), c.Param("id")

	result, err := h.svc.GetDataset(c.Request.Context(), sourceName, datasetID, c.Query("format"), boolQuery(c, "refresh"))
	if err != nil {
		respondError(c, "get_dataset", err)
		return
	}

	c.Header("X-Dataset-Rows", strconv.Itoa(result.Records.Len()))
	c.JSON(http.StatusOK, result)
}

func (h *Handler) APIGetCategories(c *gin.Context) {
	sourceName := c.Param("source")

	categories, err := h.svc.Categories(c.Request.Context(), sourceName)
	if err != nil {
		respondError(c, "get_categories", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source":     sourceName,
		"categories": categories,
	})
}

func (h *Handler) APIGetForecast(c *gin.Context) {
	forecasts, meta, err := h.svc.GetWeatherForecast(c.Request.Context(), boolQuery(c, "force"))
	if err != nil {
		respondError(c, "get_forecast", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records":  forecasts,
		"metadata": meta,
	})
}

func (h *Handler) APIGetEarthquakes(c *gin.Context) {
	days, err := intQuery(c, "days", defaultDaysBack)
	if err != nil || days < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid days parameter"})
		return
	}

	minMagnitude := 0.0
	if raw := c.Query("min_magnitude"); raw != "" {
		if minMagnitude, err = cast.ToFloat64E(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid min_magnitude parameter"})
			return
		}
	}

	earthquakes, meta, err := h.svc.GetEarthquakes(c.Request.Context(), days, minMagnitude, boolQuery(c, "force"))
	if err != nil {
		respondError(c, "get_earthquakes", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records":  earthquakes,
		"metadata": meta,
	})
}

func (h *Handler) APIGetObservations(c *gin.Context) {
	observations, meta, err := h.svc.GetObservations(c.Request.Context(), boolQuery(c, "force"))
	if err != nil {
		respondError(c, "get_observations", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records":  observations,
		"metadata": meta,
	})
}

func (h *Handler) APIGetStatus(c *gin.Context) {
	status, err := h.svc.GetHealthStatus(c.Request.Context())
	if err != nil {
		respondError(c, "get_status", err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) APIRefreshAll(c *gin.Context) {
	results, err := h.svc.ForceRefreshAll(c.Request.Context())
	if err != nil {
		respondError(c, "refresh_all", err)
		return
	}

	success := true
	for _, ok := range results {
		success = success && ok
	}

	c.JSON(http.StatusOK, gin.H{
		"success": success,
		"results": results,
	})
}

func (h *Handler) APIRefreshType(c *gin.Context) {
	kind, ok := service.ParseKind(c.Param("type"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown data type"})
		return
	}

	records, err := h.svc.ForceRefresh(c.Request.Context(), kind)
	if err != nil {
		respondError(c, "refresh_"+string(kind), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"type":    string(kind),
		"success": true,
		"records": records,
	})
}

func (h *Handler) APIExportTable(c *gin.Context) {
	table := c.Param("table")

	path, rows, err := h.svc.ExportTable(c.Request.Context(), table, "")
	if err != nil {
		respondError(c, "export_table", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"table": table,
		"path":  path,
		"rows":  rows,
	})
}

func (h *Handler) APIExportAll(c *gin.Context) {
	paths, err := h.svc.ExportAll(c.Request.Context())
	if err != nil {
		respondError(c, "export_all", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"exports": paths})
}

func (h *Handler) APICleanup(c *gin.Context) {
	days, err := intQuery(c, "days", h.retentionDays)
	if err != nil || days < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid days parameter"})
		return
	}

	result, err := h.svc.Cleanup(c.Request.Context(), days)
	if err != nil {
		respondError(c, "cleanup", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"retention_days": days,
		"deleted":        result,
		"total":          result.Total(),
	})
}

func (h *Handler) APITestConnectivity(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.TestConnectivity(c.Request.Context()))
}

// respondError maps the error taxonomy onto HTTP status codes.
func respondError(c *gin.Context, operation string, err error) {
	status := http.StatusInternalServerError
	message := "Internal error"

	var (
		fetchErr *fetch.FetchError
		parseErr *source.ParseError
		storeErr *database.StoreError
	)
	switch {
	case errors.Is(err, source.ErrUnknownSource):
		status, message = http.StatusNotFound, "Source not found"
	case errors.Is(err, database.ErrUnknownTable):
		status, message = http.StatusNotFound, "Table not found"
	case errors.As(err, &fetchErr):
		status, message = http.StatusBadGateway, "Upstream request failed"
	case errors.As(err, &parseErr):
		status, message = http.StatusBadGateway, "Upstream response could not be parsed"
	case errors.As(err, &storeErr):
		message = "Store error"
	}

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "operation", operation, "error", err)
	} else {
		slog.Debug("Request rejected", "operation", operation, "error", err)
	}

	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func intQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func boolQuery(c *gin.Context, key string) bool {
	return cast.ToBool(c.Query(key))
}
