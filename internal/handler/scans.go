package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
)

func (h *Handler) studentScan(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		ClassID   string `json:"class_id" binding:"required"`
		TokenID   string `json:"token_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.scans.StudentScan(c.Request.Context(), req.StudentID, req.ClassID, req.TokenID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// scanLanding is where the QR URL lands; the client posts the student id back
// with the same class id and nonce.
func (h *Handler) scanLanding(c *gin.Context) {
	classID, nonce := c.Query("classId"), c.Query("nonce")
	if classID == "" || nonce == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "classId and nonce are required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"class_id": classID,
		"token_id": nonce,
		"message":  "POST /scan with student_id, class_id and token_id to record attendance",
	})
}

func (h *Handler) teacherScan(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.scans.TeacherScan(c.Request.Context(), req.StudentID, session(c).ID, teacherID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) badgeScan(c *gin.Context) {
	var req struct {
		Payload string `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.scans.BadgeScan(c.Request.Context(), session(c).ID, teacherID(c), req.Payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) manualEntry(c *gin.Context) {
	var req struct {
		StudentID     string `json:"student_id" binding:"required"`
		State         string `json:"state"`
		Justification string `json:"justification"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var state attendance.State
	if req.State != "" {
		s, err := attendance.ParseState(req.State)
		if err != nil {
			h.fail(c, err)
			return
		}
		state = s
	}
	out, err := h.scans.ManualEntry(c.Request.Context(), req.StudentID, session(c).ID, teacherID(c), state, req.Justification)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}
