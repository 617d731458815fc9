package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-enrollment-api/internal/middleware"
	"github.com/noah-isme/edu-enrollment-api/internal/models"
)

// Routes carries everything RegisterRoutes mounts.
type Routes struct {
	Enrollments  *EnrollmentHandler
	Mentors      *MentorHandler
	Rankings     *RankingHandler
	Certificates *CertificateHandler
	Metrics      *MetricsHandler

	// Tokens enables bearer authentication on mutating routes when set.
	Tokens middleware.TokenValidator
	Audit  middleware.AuditWriter
	Logger *zap.Logger
}

// RegisterRoutes mounts the probes on r and the API under prefix.
func RegisterRoutes(r *gin.Engine, prefix string, routes Routes) {
	r.GET("/health", routes.Metrics.Health)
	r.GET("/ready", routes.Metrics.Ready)
	r.GET("/metrics", routes.Metrics.Prometheus)
	r.GET("/metrics/summary", routes.Metrics.Summary)

	api := r.Group(prefix)

	writers := []models.UserRole{models.RoleAdmin, models.RoleOperator}
	guard := func(action, resource string, idParams []string, roles ...models.UserRole) []gin.HandlerFunc {
		var chain []gin.HandlerFunc
		if routes.Tokens != nil {
			chain = append(chain, middleware.JWT(routes.Tokens), middleware.RequireRoles(roles...))
		}
		return append(chain, middleware.Audit(routes.Audit, routes.Logger, action, resource, idParams...))
	}
	with := func(chain []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
		return append(chain, h)
	}

	e := routes.Enrollments
	api.GET("/enrollments", e.List)
	api.POST("/enrollments", with(guard(models.AuditActionEnrollmentCreate, "enrollment", nil, writers...), e.Create)...)
	api.GET("/enrollments/:userId", e.ListByUser)
	api.PUT("/enrollments/:userId/:courseId",
		with(guard(models.AuditActionEnrollmentUpdate, "enrollment", []string{"userId", "courseId"}, models.RoleAdmin, models.RoleOperator, models.RoleMentor), e.Update)...)
	api.DELETE("/enrollments/:userId/:courseId", with(guard(models.AuditActionEnrollmentDelete, "enrollment", []string{"userId", "courseId"}, writers...), e.DeleteByUserAndCourse)...)
	api.GET("/enrollment/:id", e.Get)
	api.DELETE("/enrollment/:id", with(guard(models.AuditActionEnrollmentDelete, "enrollment", []string{"id"}, writers...), e.Delete)...)
	api.POST("/enrollment/:id/mentors", with(guard(models.AuditActionMentorAssign, "enrollment", []string{"id"}, writers...), e.AssignMentor)...)
	api.DELETE("/enrollment/:id/mentors/:mentorId", with(guard(models.AuditActionMentorRemove, "enrollment", []string{"id", "mentorId"}, writers...), e.RemoveMentor)...)

	api.GET("/mentors/:id", routes.Mentors.Get)

	rk := routes.Rankings
	api.GET("/enrollments/top-practical/:courseId", rk.TopPerformers)
	api.GET("/enrollments/top-practical/:courseId/export", rk.Export)
	api.DELETE("/cache/rankings", with(guard(models.AuditActionRankingFlush, "ranking_cache", nil, models.RoleAdmin), rk.FlushCache)...)

	ct := routes.Certificates
	api.POST("/certificate", with(guard(models.AuditActionCertificateIssue, "certificate", nil, writers...), ct.IssueBatch)...)
	api.POST("/certificate/issue", with(guard(models.AuditActionCertificateIssue, "certificate", nil, writers...), ct.Issue)...)
	api.GET("/certificates", ct.List)
	api.GET("/certificate/:userId", ct.ListByUser)
	api.GET("/certificate/:userId/pdf", ct.PDF)
	api.PUT("/certificate/:userId", with(guard(models.AuditActionCertificateUpdate, "certificate", []string{"userId"}, writers...), ct.Update)...)
	api.DELETE("/certificate/:userId", with(guard(models.AuditActionCertificateDelete, "certificate", []string{"userId"}, writers...), ct.DeleteByUser)...)
	api.DELETE("/certificate/deleteById/:id", with(guard(models.AuditActionCertificateDelete, "certificate", []string{"id"}, writers...), ct.DeleteByID)...)
}
