package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"suruchiraj-service/internal/addresses"
	"suruchiraj-service/pkg/ctxmanage"
	"suruchiraj-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

func (h *Handler) AddAddress(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := claimsFromRequest(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var na addresses.NewAddress
	if err := c.ShouldBindJSON(&na); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(na); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("validation failed: %v", err)})
		return
	}

	address, err := h.addresses.InsertAddress(c.Request.Context(), claims.Subject, na)
	if err != nil {
		slog.Error("error inserting address", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.UserID, claims.Subject), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to save address"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "address": address})
}

func (h *Handler) ListAddresses(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := claimsFromRequest(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	list, err := h.addresses.ListAddresses(c.Request.Context(), claims.Subject)
	if err != nil {
		slog.Error("error listing addresses", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.UserID, claims.Subject), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch addresses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "addresses": list})
}
