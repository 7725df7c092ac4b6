package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"qrattend/internal/classes"
)

func (h *Handler) createClass(c *gin.Context) {
	var req classes.NewClass
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.TeacherID = teacherID(c)
	sess, err := h.lifecycle.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) openClass(c *gin.Context) {
	sess, err := h.lifecycle.Open(c.Request.Context(), session(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) closeClass(c *gin.Context) {
	res, err := h.lifecycle.Close(c.Request.Context(), session(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) reopenClass(c *gin.Context) {
	sess, err := h.lifecycle.Reopen(c.Request.Context(), session(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"class":   sess,
		"message": "class reopened; students marked absent on close keep their records until amended",
	})
}

func (h *Handler) sweepClass(c *gin.Context) {
	res, err := h.lifecycle.Sweep(c.Request.Context(), session(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ticket(c *gin.Context) {
	tk, err := h.scans.Ticket(c.Request.Context(), session(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tk)
}

// qrImage mints a fresh ticket and returns its scan URL as a PNG.
func (h *Handler) qrImage(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))
	tk, err := h.scans.Ticket(c.Request.Context(), session(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	png, err := h.qr.PNG(tk.ScanURL, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("X-Scan-Url", tk.ScanURL)
	c.Header("X-Token-Expires-At", tk.ExpiresAt.UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) roster(c *gin.Context) {
	roster, err := h.lifecycle.Roster(c.Request.Context(), session(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, roster)
}

func (h *Handler) getSettings(c *gin.Context) {
	s, err := h.lifecycle.Settings(c.Request.Context(), session(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) putSettings(c *gin.Context) {
	var req classes.SettingsPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.lifecycle.PatchSettings(c.Request.Context(), session(c).ID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) badges(c *gin.Context) {
	badges, err := h.scans.Badges(c.Request.Context(), session(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"badges": badges})
}
