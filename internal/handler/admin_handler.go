package handler

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/looma/see-practice-api/internal/domain/entity"
	"github.com/looma/see-practice-api/internal/handler/dto"
	"github.com/looma/see-practice-api/internal/service"
	"github.com/looma/see-practice-api/pkg/auth"
	"github.com/looma/see-practice-api/pkg/logger"
)

// IdentityLister читает реестр identity
type IdentityLister interface {
	ListIdentities(ctx context.Context, limit, offset int) ([]entity.KnownIdentity, int64, error)
	AllIdentities(ctx context.Context) ([]entity.KnownIdentity, error)
}

// AdminHandler обслуживает эндпоинты админ-панели
type AdminHandler struct {
	passwordHash string
	tokens       *auth.AdminTokenService
	identities   IdentityLister
	log          *zap.Logger
}

func NewAdminHandler(passwordHash string, tokens *auth.AdminTokenService, identities IdentityLister) *AdminHandler {
	return &AdminHandler{
		passwordHash: passwordHash,
		tokens:       tokens,
		identities:   identities,
		log:          logger.WithModule("admin_handler"),
	}
}

// Authenticate обрабатывает POST /api/admin/auth
func (h *AdminHandler) Authenticate(c *gin.Context) {
	var req dto.AdminAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request data", "error_type": "validation_error"})
		return
	}

	if h.passwordHash == "" || h.tokens == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Admin access not configured", "error_type": "admin_disabled"})
		return
	}

	if !auth.CheckPassword(h.passwordHash, req.Password) {
		h.log.Warn("admin authentication failed", zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid password", "error_type": "invalid_credentials"})
		return
	}

	token, expiresAt, err := h.tokens.GenerateToken()
	if err != nil {
		h.log.Error("failed to issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Authentication failed", "error_type": "internal_server_error"})
		return
	}

	c.JSON(http.StatusOK, dto.AdminAuthResponse{Success: true, Token: token, ExpiresAt: expiresAt})
}

// ListIdentities обрабатывает GET /api/admin/identities?limit=&offset=
func (h *AdminHandler) ListIdentities(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit", "error_type": "validation_error"})
		return
	}
	if limit > service.MaxIdentityPageSize {
		limit = service.MaxIdentityPageSize
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset", "error_type": "validation_error"})
		return
	}

	items, total, err := h.identities.ListIdentities(c.Request.Context(), limit, offset)
	if err != nil {
		h.log.Error("failed to list identities", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to fetch identities", "error_type": "service_unavailable"})
		return
	}

	resp := dto.IdentityListResponse{
		Items:  make([]dto.IdentityItem, 0, len(items)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, dto.IdentityItem{
			Email:               item.Identity,
			CreatedAt:           item.CreatedAt,
			LastAuthenticatedAt: item.LastAuthenticatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// ExportIdentities обрабатывает GET /api/admin/identities/export?format=xlsx|csv
func (h *AdminHandler) ExportIdentities(c *gin.Context) {
	format := c.DefaultQuery("format", "xlsx")
	if format != "xlsx" && format != "csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported format", "error_type": "validation_error"})
		return
	}

	items, err := h.identities.AllIdentities(c.Request.Context())
	if err != nil {
		h.log.Error("failed to load identities for export", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to fetch identities", "error_type": "service_unavailable"})
		return
	}

	filename := fmt.Sprintf("known_identities_%s", time.Now().Format("2006-01-02"))
	if format == "csv" {
		h.exportCSV(c, items, filename)
		return
	}
	h.exportXLSX(c, items, filename)
}

var exportHeaders = []string{"Email", "First login (UTC)", "Last login (UTC)"}

func exportRow(item entity.KnownIdentity) []string {
	return []string{
		sanitizeForExcel(item.Identity),
		item.CreatedAt.UTC().Format(time.RFC3339),
		item.LastAuthenticatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *AdminHandler) exportCSV(c *gin.Context, items []entity.KnownIdentity, filename string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))

	// BOM, чтобы Excel распознал UTF-8
	_, _ = c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(c.Writer)
	_ = writer.Write(exportHeaders)
	for _, item := range items {
		_ = writer.Write(exportRow(item))
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.log.Error("failed to write csv export", zap.Error(err))
	}
}

func (h *AdminHandler) exportXLSX(c *gin.Context, items []entity.KnownIdentity, filename string) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Identities"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		h.log.Error("failed to name sheet", zap.Error(err))
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		h.log.Error("failed to create stream writer", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file", "error_type": "internal_server_error"})
		return
	}

	if err := sw.SetRow("A1", toCells(exportHeaders)); err != nil {
		h.log.Error("failed to write header row", zap.Error(err))
	}
	for i, item := range items {
		cell := fmt.Sprintf("A%d", i+2)
		if err := sw.SetRow(cell, toCells(exportRow(item))); err != nil {
			h.log.Error("failed to write row", zap.Int("row", i+2), zap.Error(err))
		}
	}
	if err := sw.Flush(); err != nil {
		h.log.Error("failed to flush stream writer", zap.Error(err))
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
	if err := f.Write(c.Writer); err != nil {
		h.log.Error("failed to write xlsx response", zap.Error(err))
	}
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// sanitizeForExcel экранирует значения, которые табличные редакторы выполнят как формулы
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}
