// Package handler exposes the attendance core over HTTP with gin.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/classes"
	"qrattend/internal/errs"
	"qrattend/internal/qr"
	"qrattend/internal/scan"
)

const sessionKey = "class"

// Handler holds the services behind the routes.
type Handler struct {
	lifecycle *classes.Lifecycle
	scans     *scan.Coordinator
	registry  *attendance.Registry
	qr        *qr.Renderer
	log       zerolog.Logger
}

func New(lc *classes.Lifecycle, scans *scan.Coordinator, registry *attendance.Registry, renderer *qr.Renderer, log zerolog.Logger) *Handler {
	if renderer == nil {
		renderer = qr.NewRenderer()
	}
	return &Handler{lifecycle: lc, scans: scans, registry: registry, qr: renderer, log: log.With().Str("component", "http").Logger()}
}

// RegisterPublic mounts the anonymous student routes.
func (h *Handler) RegisterPublic(r gin.IRoutes) {
	r.POST("/scan", h.studentScan)
	r.GET("/scan", h.scanLanding)
}

// RegisterTeacher mounts the teacher routes. g must already run
// auth.TeacherAuth.
func (h *Handler) RegisterTeacher(g *gin.RouterGroup) {
	g.POST("/classes", h.createClass)

	cls := g.Group("/classes/:id", h.ownClass)
	cls.POST("/open", h.openClass)
	cls.POST("/close", h.closeClass)
	cls.POST("/reopen", h.reopenClass)
	cls.POST("/sweep", h.sweepClass)
	cls.GET("/ticket", h.ticket)
	cls.GET("/qr.png", h.qrImage)
	cls.POST("/scans/teacher", h.teacherScan)
	cls.POST("/scans/badge", h.badgeScan)
	cls.POST("/manual", h.manualEntry)
	cls.GET("/attendance", h.listAttendance)
	cls.GET("/roster", h.roster)
	cls.GET("/settings", h.getSettings)
	cls.PUT("/settings", h.putSettings)
	cls.GET("/badges", h.badges)

	rec := g.Group("/attendance/:id", h.ownRecord)
	rec.PATCH("", h.amendRecord)
	rec.GET("/audit", h.auditTrail)
}

// ownClass loads the class named by :id and checks the caller teaches it.
func (h *Handler) ownClass(c *gin.Context) {
	sess, err := h.lifecycle.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abort(c, err)
		return
	}
	if !h.mayAct(c, sess) {
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

// ownRecord checks the caller teaches the class of the record named by :id.
func (h *Handler) ownRecord(c *gin.Context) {
	ctx := c.Request.Context()
	rec, err := h.registry.GetRecord(ctx, c.Param("id"))
	if err != nil {
		h.abort(c, err)
		return
	}
	sess, err := h.lifecycle.Get(ctx, rec.ClassID)
	if err != nil {
		h.abort(c, err)
		return
	}
	if !h.mayAct(c, sess) {
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func (h *Handler) mayAct(c *gin.Context, sess classes.Session) bool {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing claims"})
		return false
	}
	if claims.Role != auth.RoleAdmin && claims.Subject != sess.TeacherID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not your class"})
		return false
	}
	return true
}

func teacherID(c *gin.Context) string {
	claims, _ := auth.ClaimsFrom(c)
	return claims.Subject
}

func session(c *gin.Context) classes.Session {
	v, _ := c.Get(sessionKey)
	sess, _ := v.(classes.Session)
	return sess
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrNotFound:
		return http.StatusNotFound
	case errs.ErrInvalidState, errs.ErrInvalid:
		return http.StatusBadRequest
	case errs.ErrConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes err as JSON. Domain errors carry their own message; anything
// else is logged and reported generically.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	msg := err.Error()
	var de *errs.Error
	if errors.As(err, &de) {
		msg = de.Msg
	}
	c.JSON(status, gin.H{"error": msg})
}

func (h *Handler) abort(c *gin.Context, err error) {
	h.fail(c, err)
	c.Abort()
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
