package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"course-payment-service/internal/gateway"
	"course-payment-service/internal/models"
	"course-payment-service/internal/service"
	"course-payment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	webhookPath = "/api/payment/webhook"

	// maxWebhookBody bounds what the unauthenticated webhook reads before
	// the signature check.
	maxWebhookBody = 1 << 20
)

// PaymentService is the payment flow as seen by the HTTP layer
type PaymentService interface {
	CreateOrder(ctx context.Context, studentID, courseID uuid.UUID) (*service.CreateOrderResponse, error)
	VerifyPayment(ctx context.Context, req *service.VerifyPaymentRequest) (*service.VerifyPaymentResponse, error)
	HandleWebhook(ctx context.Context, body []byte, sig, eventID string) error
	EnrollFree(ctx context.Context, studentID, courseID uuid.UUID) error
	ListOrders(ctx context.Context, studentID uuid.UUID) ([]models.PaymentOrder, error)
}

// EnrollmentService lists enrollments
type EnrollmentService interface {
	EnrolledCourses(ctx context.Context, studentID uuid.UUID) ([]models.CourseEnrollment, error)
}

// InvoiceService answers invoice queries
type InvoiceService interface {
	ListForStudent(ctx context.Context, studentID uuid.UUID) ([]models.Invoice, error)
	GetForStudent(ctx context.Context, studentID, invoiceID uuid.UUID) (*models.Invoice, error)
	EducatorRevenue(ctx context.Context, educatorID uuid.UUID) (*service.RevenueReport, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the cross-cutting parts of the router
type Options struct {
	JWTSecret  string
	Limiter    RateLimiter
	RateLimit  int
	RateWindow time.Duration
	Readiness  map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	payments    PaymentService
	enrollments EnrollmentService
	invoices    InvoiceService
	opts        Options
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(payments PaymentService, enrollments EnrollmentService, invoices InvoiceService, opts Options) *Handler {
	return &Handler{
		payments:    payments,
		enrollments: enrollments,
		invoices:    invoices,
		opts:        opts,
		logger:      util.GetLogger(),
	}
}

// NewEngine creates a gin engine that only honours X-Forwarded-For and
// X-Real-IP from the given proxies. With none, the client IP is the peer
// address.
func NewEngine(trustedProxies []string) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	return router, nil
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(rateLimitMiddleware(h.opts.Limiter, h.opts.RateLimit, h.opts.RateWindow, webhookPath))

	auth := authMiddleware([]byte(h.opts.JWTSecret))

	payment := api.Group("/payment")
	{
		payment.POST("/create-order", auth, h.createOrder)
		payment.POST("/verify", auth, h.verifyPayment)
		payment.POST("/webhook", h.webhook)
		payment.GET("/my-orders", auth, h.myOrders)
	}

	api.POST("/course/:courseId/enroll-free", auth, h.enrollFree)
	api.GET("/user/enrolled-courses", auth, h.enrolledCourses)

	invoice := api.Group("/invoice", auth)
	{
		invoice.GET("/my-invoices", h.myInvoices)
		invoice.GET("/educator/revenue", h.educatorRevenue)
		invoice.GET("/:invoiceId", h.getInvoice)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, dep := range h.opts.Readiness {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

type createOrderRequest struct {
	CourseID string `json:"courseId" binding:"required"`
}

func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid course ID"})
		return
	}

	resp, err := h.payments.CreateOrder(c.Request.Context(), currentUser(c), courseID)
	if err != nil {
		h.writeError(c, "Failed to create order", err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) verifyPayment(c *gin.Context) {
	var req service.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.payments.VerifyPayment(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, "Payment verification failed", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// webhook hands the untouched body to the service; the signature covers
// the exact bytes sent.
func (h *Handler) webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	err = h.payments.HandleWebhook(c.Request.Context(), body,
		c.GetHeader(gateway.HeaderSignature), c.GetHeader(gateway.HeaderEventID))
	if err != nil {
		h.writeError(c, "Webhook rejected", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) enrollFree(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid course ID"})
		return
	}

	if err := h.payments.EnrollFree(c.Request.Context(), currentUser(c), courseID); err != nil {
		h.writeError(c, "Enrollment failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Enrolled successfully"})
}

func (h *Handler) myOrders(c *gin.Context) {
	orders, err := h.payments.ListOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, "Failed to load orders", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) enrolledCourses(c *gin.Context) {
	entries, err := h.enrollments.EnrolledCourses(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, "Failed to load enrollments", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"enrolledCourses": entries})
}

func (h *Handler) myInvoices(c *gin.Context) {
	invoices, err := h.invoices.ListForStudent(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, "Failed to load invoices", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

func (h *Handler) getInvoice(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("invoiceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
		return
	}

	inv, err := h.invoices.GetForStudent(c.Request.Context(), currentUser(c), invoiceID)
	if err != nil {
		h.writeError(c, "Failed to load invoice", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": inv})
}

func (h *Handler) educatorRevenue(c *gin.Context) {
	report, err := h.invoices.EducatorRevenue(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, "Failed to load revenue", err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// writeError maps service errors onto status codes. Anything unrecognised is
// logged and answered with a generic 500.
func (h *Handler) writeError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg,
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(status, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotConfigured):
		return http.StatusNotImplemented
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrSignatureMismatch),
		errors.Is(err, service.ErrAlreadyProcessed),
		errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrMalformedEvent),
		errors.Is(err, service.ErrPaymentRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
