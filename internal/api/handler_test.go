package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course-payment-service/internal/gateway"
	"course-payment-service/internal/models"
	"course-payment-service/internal/redisclient"
	"course-payment-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "test-jwt-secret"

type fakePayments struct {
	createErr  error
	verifyErr  error
	webhookErr error
	freeErr    error

	createdFor  uuid.UUID
	webhookBody []byte
	webhookSig  string
	webhookID   string
}

func (f *fakePayments) CreateOrder(_ context.Context, studentID, courseID uuid.UUID) (*service.CreateOrderResponse, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdFor = studentID
	return &service.CreateOrderResponse{
		Key:          "rzp_test_key",
		Order:        &gateway.Order{ID: "order_abc", Amount: 49900, Currency: "INR"},
		LocalOrderID: courseID,
		Mode:         gateway.ModeTest,
	}, nil
}

func (f *fakePayments) VerifyPayment(context.Context, *service.VerifyPaymentRequest) (*service.VerifyPaymentResponse, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &service.VerifyPaymentResponse{Message: "Payment verified and enrolled"}, nil
}

func (f *fakePayments) HandleWebhook(_ context.Context, body []byte, sig, eventID string) error {
	f.webhookBody, f.webhookSig, f.webhookID = body, sig, eventID
	return f.webhookErr
}

func (f *fakePayments) EnrollFree(context.Context, uuid.UUID, uuid.UUID) error {
	return f.freeErr
}

func (f *fakePayments) ListOrders(_ context.Context, studentID uuid.UUID) ([]models.PaymentOrder, error) {
	return []models.PaymentOrder{{ID: uuid.New(), StudentID: studentID, GatewayOrderID: "order_abc", Amount: 49900}}, nil
}

type fakeEnrollments struct{}

func (fakeEnrollments) EnrolledCourses(_ context.Context, studentID uuid.UUID) ([]models.CourseEnrollment, error) {
	return []models.CourseEnrollment{{StudentID: studentID, CourseID: uuid.New()}}, nil
}

type fakeInvoices struct {
	owner uuid.UUID
	inv   models.Invoice
}

func (f *fakeInvoices) ListForStudent(context.Context, uuid.UUID) ([]models.Invoice, error) {
	return []models.Invoice{f.inv}, nil
}

func (f *fakeInvoices) GetForStudent(_ context.Context, studentID, invoiceID uuid.UUID) (*models.Invoice, error) {
	if invoiceID != f.inv.ID {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, service.ErrNotFound)
	}
	if studentID != f.owner {
		return nil, service.ErrForbidden
	}
	return &f.inv, nil
}

func (f *fakeInvoices) EducatorRevenue(context.Context, uuid.UUID) (*service.RevenueReport, error) {
	return &service.RevenueReport{Invoices: []models.Invoice{f.inv}, TotalRevenue: f.inv.Total, Count: 1}, nil
}

type fakeLimiter struct {
	hits map[string]int64
	err  error
}

func (l *fakeLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (*redisclient.RateLimitResult, error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.hits == nil {
		l.hits = make(map[string]int64)
	}
	l.hits[key]++
	count := l.hits[key]
	return &redisclient.RateLimitResult{
		Allowed:   count <= int64(limit),
		Count:     count,
		Remaining: max(int64(limit)-count, 0),
		ResetIn:   window,
	}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newRouter(payments *fakePayments, invoices *fakeInvoices, opts Options) *gin.Engine {
	return newRouterBehind(payments, invoices, opts, nil)
}

func newRouterBehind(payments *fakePayments, invoices *fakeInvoices, opts Options, trustedProxies []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if opts.JWTSecret == "" {
		opts.JWTSecret = jwtSecret
	}
	router, err := NewEngine(trustedProxies)
	if err != nil {
		panic(err)
	}
	NewHandler(payments, fakeEnrollments{}, invoices, opts).SetupRoutes(router)
	return router
}

func signToken(t *testing.T, userID uuid.UUID, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID.String(),
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func do(router *gin.Engine, method, path string, body []byte, token string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateOrderRequiresAuth(t *testing.T) {
	router := newRouter(&fakePayments{}, &fakeInvoices{}, Options{})
	body := []byte(fmt.Sprintf(`{"courseId":%q}`, uuid.NewString()))

	w := do(router, http.MethodPost, "/api/payment/create-order", body, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/api/payment/create-order", body, signToken(t, uuid.New(), "other"), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrder(t *testing.T) {
	payments := &fakePayments{}
	router := newRouter(payments, &fakeInvoices{}, Options{})
	student := uuid.New()
	body := []byte(fmt.Sprintf(`{"courseId":%q}`, uuid.NewString()))

	w := do(router, http.MethodPost, "/api/payment/create-order", body, signToken(t, student, jwtSecret), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rzp_test_key", resp["key"])
	assert.Equal(t, "test", resp["mode"])
	assert.Contains(t, resp, "localOrderId")
	assert.Equal(t, student, payments.createdFor)
}

func TestCreateOrderReadsTokenCookie(t *testing.T) {
	router := newRouter(&fakePayments{}, &fakeInvoices{}, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/payment/create-order",
		bytes.NewReader([]byte(fmt.Sprintf(`{"courseId":%q}`, uuid.NewString()))))
	req.AddCookie(&http.Cookie{Name: "token", Value: signToken(t, uuid.New(), jwtSecret)})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateOrderErrors(t *testing.T) {
	token := signToken(t, uuid.New(), jwtSecret)
	body := []byte(fmt.Sprintf(`{"courseId":%q}`, uuid.NewString()))

	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("course x: %w", service.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("course x: %w", service.ErrInvalidAmount), http.StatusBadRequest},
		{errors.New("gateway timeout"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		router := newRouter(&fakePayments{createErr: tc.err}, &fakeInvoices{}, Options{})
		w := do(router, http.MethodPost, "/api/payment/create-order", body, token, nil)
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
	}

	router := newRouter(&fakePayments{}, &fakeInvoices{}, Options{})
	w := do(router, http.MethodPost, "/api/payment/create-order", []byte(`{"courseId":"nope"}`), token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInternalErrorsHideDetails(t *testing.T) {
	router := newRouter(&fakePayments{createErr: errors.New("pq: password authentication failed")}, &fakeInvoices{}, Options{})
	body := []byte(fmt.Sprintf(`{"courseId":%q}`, uuid.NewString()))

	w := do(router, http.MethodPost, "/api/payment/create-order", body, signToken(t, uuid.New(), jwtSecret), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestVerifyPayment(t *testing.T) {
	token := signToken(t, uuid.New(), jwtSecret)
	body := []byte(`{"razorpay_order_id":"order_abc","razorpay_payment_id":"pay_xyz","razorpay_signature":"deadbeef"}`)

	router := newRouter(&fakePayments{}, &fakeInvoices{}, Options{})
	w := do(router, http.MethodPost, "/api/payment/verify", body, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Payment verified and enrolled")

	for _, err := range []error{service.ErrSignatureMismatch, service.ErrAlreadyProcessed} {
		router = newRouter(&fakePayments{verifyErr: err}, &fakeInvoices{}, Options{})
		w = do(router, http.MethodPost, "/api/payment/verify", body, token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	w = do(router, http.MethodPost, "/api/payment/verify", []byte(`{"razorpay_order_id":"order_abc"}`), token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookPassesRawBody(t *testing.T) {
	payments := &fakePayments{}
	router := newRouter(payments, &fakeInvoices{}, Options{})
	body := []byte("{\"event\": \"payment.captured\",\n \"payload\": {}}")

	w := do(router, http.MethodPost, "/api/payment/webhook", body, "", map[string]string{
		gateway.HeaderSignature: "abc123",
		gateway.HeaderEventID:   "evt_1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, body, payments.webhookBody)
	assert.Equal(t, "abc123", payments.webhookSig)
	assert.Equal(t, "evt_1", payments.webhookID)
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	payments := &fakePayments{}
	router := newRouter(payments, &fakeInvoices{}, Options{})

	w := do(router, http.MethodPost, "/api/payment/webhook", bytes.Repeat([]byte("a"), maxWebhookBody+1), "", nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Nil(t, payments.webhookBody)
}

func TestWebhookErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{service.ErrInvalidSignature, http.StatusBadRequest},
		{fmt.Errorf("%w: bad json", service.ErrMalformedEvent), http.StatusBadRequest},
		{service.ErrNotConfigured, http.StatusNotImplemented},
	}

	for _, tc := range cases {
		router := newRouter(&fakePayments{webhookErr: tc.err}, &fakeInvoices{}, Options{})
		w := do(router, http.MethodPost, "/api/payment/webhook", []byte(`{}`), "", nil)
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}

func TestEnrollFree(t *testing.T) {
	token := signToken(t, uuid.New(), jwtSecret)
	path := "/api/course/" + uuid.NewString() + "/enroll-free"

	router := newRouter(&fakePayments{}, &fakeInvoices{}, Options{})
	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, path, nil, token, nil).Code)

	router = newRouter(&fakePayments{freeErr: service.ErrPaymentRequired}, &fakeInvoices{}, Options{})
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, path, nil, token, nil).Code)
}

func TestStudentListings(t *testing.T) {
	router := newRouter(&fakePayments{}, &fakeInvoices{}, Options{})
	token := signToken(t, uuid.New(), jwtSecret)

	w := do(router, http.MethodGet, "/api/payment/my-orders", nil, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "order_abc")

	w = do(router, http.MethodGet, "/api/user/enrolled-courses", nil, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "enrolledCourses")

	w = do(router, http.MethodGet, "/api/user/enrolled-courses", nil, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInvoiceRoutes(t *testing.T) {
	owner := uuid.New()
	invoices := &fakeInvoices{
		owner: owner,
		inv:   models.Invoice{ID: uuid.New(), InvoiceNumber: "INV-1-ABCDEF", StudentID: owner, Total: 49900},
	}
	router := newRouter(&fakePayments{}, invoices, Options{})
	ownerToken := signToken(t, owner, jwtSecret)

	w := do(router, http.MethodGet, "/api/invoice/my-invoices", nil, ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "INV-1-ABCDEF")

	w = do(router, http.MethodGet, "/api/invoice/"+invoices.inv.ID.String(), nil, ownerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/invoice/"+invoices.inv.ID.String(), nil, signToken(t, uuid.New(), jwtSecret), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodGet, "/api/invoice/"+uuid.NewString(), nil, ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodGet, "/api/invoice/educator/revenue", nil, ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalRevenue":49900`)
}

func TestRateLimitExemptsWebhook(t *testing.T) {
	limiter := &fakeLimiter{}
	router := newRouter(&fakePayments{}, &fakeInvoices{}, Options{Limiter: limiter, RateLimit: 2, RateWindow: time.Minute})
	token := signToken(t, uuid.New(), jwtSecret)

	for i := 0; i < 2; i++ {
		w := do(router, http.MethodGet, "/api/invoice/my-invoices", nil, token, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := do(router, http.MethodGet, "/api/invoice/my-invoices", nil, token, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("RateLimit-Remaining"))

	for i := 0; i < 5; i++ {
		w = do(router, http.MethodPost, "/api/payment/webhook", []byte(`{}`), "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", nil, "", nil).Code)
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeers(t *testing.T) {
	limiter := &fakeLimiter{}
	router := newRouter(&fakePayments{}, &fakeInvoices{}, Options{Limiter: limiter, RateLimit: 2, RateWindow: time.Minute})
	token := signToken(t, uuid.New(), jwtSecret)

	codes := make([]int, 0, 10)
	for i := 0; i < 10; i++ {
		w := do(router, http.MethodGet, "/api/invoice/my-invoices", nil, token,
			map[string]string{"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i)})
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes[:2])
	for _, code := range codes[2:] {
		assert.Equal(t, http.StatusTooManyRequests, code)
	}
	assert.Len(t, limiter.hits, 1)
	assert.Contains(t, limiter.hits, "ip:192.0.2.1")
}

func TestRateLimitUsesForwardedForFromTrustedProxy(t *testing.T) {
	limiter := &fakeLimiter{}
	router := newRouterBehind(&fakePayments{}, &fakeInvoices{},
		Options{Limiter: limiter, RateLimit: 2, RateWindow: time.Minute}, []string{"192.0.2.1"})
	token := signToken(t, uuid.New(), jwtSecret)

	for i := 0; i < 3; i++ {
		w := do(router, http.MethodGet, "/api/invoice/my-invoices", nil, token,
			map[string]string{"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i)})
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Len(t, limiter.hits, 3)
	assert.Contains(t, limiter.hits, "ip:10.0.0.0")
}

func TestNewEngineRejectsBadProxy(t *testing.T) {
	_, err := NewEngine([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	router := newRouter(&fakePayments{}, &fakeInvoices{}, Options{Limiter: limiter, RateLimit: 1, RateWindow: time.Minute})
	token := signToken(t, uuid.New(), jwtSecret)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/invoice/my-invoices", nil, token, nil).Code)
	}
}

func TestReadiness(t *testing.T) {
	router := newRouter(&fakePayments{}, &fakeInvoices{}, Options{Readiness: map[string]Pinger{
		"database": fakePinger{},
		"redis":    fakePinger{},
	}})
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/ready", nil, "", nil).Code)

	router = newRouter(&fakePayments{}, &fakeInvoices{}, Options{Readiness: map[string]Pinger{
		"database": fakePinger{},
		"redis":    fakePinger{err: errors.New("connection refused")},
	}})
	w := do(router, http.MethodGet, "/ready", nil, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
