package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
)

func (h *Handler) listAttendance(c *gin.Context) {
	recs, err := h.registry.ListByClass(c.Request.Context(), session(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *Handler) amendRecord(c *gin.Context) {
	var req struct {
		State         string `json:"state" binding:"required"`
		Justification string `json:"justification"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	state, err := attendance.ParseState(req.State)
	if err != nil {
		h.fail(c, err)
		return
	}
	rec, err := h.registry.AmendRecord(c.Request.Context(), c.Param("id"), state, req.Justification, teacherID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) auditTrail(c *gin.Context) {
	entries, err := h.registry.AuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if entries == nil {
		entries = []attendance.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
