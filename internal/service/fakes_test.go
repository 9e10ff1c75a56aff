package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"course-payment-service/internal/gateway"
	"course-payment-service/internal/models"
	"course-payment-service/internal/signature"
	"course-payment-service/internal/store"

	"github.com/google/uuid"
)

// memStore is an in-memory implementation of every store interface the
// services use. The paid transition is guarded by the mutex, mirroring the
// conditional UPDATE of the SQL store.
type memStore struct {
	mu          sync.Mutex
	courses     map[uuid.UUID]*models.Course
	orders      map[string]*models.PaymentOrder
	roster      map[uuid.UUID]map[uuid.UUID]struct{}
	userCourses map[uuid.UUID]map[uuid.UUID]struct{}
	invoices    map[uuid.UUID]*models.Invoice
	users       map[uuid.UUID]*models.User

	markCalls  int
	rosterErr  error
	userErr    error
	lookupErr  error
	beforeMark func()
}

func newMemStore() *memStore {
	return &memStore{
		courses:     make(map[uuid.UUID]*models.Course),
		orders:      make(map[string]*models.PaymentOrder),
		roster:      make(map[uuid.UUID]map[uuid.UUID]struct{}),
		userCourses: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		invoices:    make(map[uuid.UUID]*models.Invoice),
		users:       make(map[uuid.UUID]*models.User),
	}
}

func (m *memStore) addCourse(price float64) *models.Course {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &models.Course{ID: uuid.New(), Title: "Course", Price: price, CreatorID: uuid.New(), IsPublished: true}
	m.courses[c.ID] = c
	return c
}

func (m *memStore) addUser(id uuid.UUID, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &models.User{ID: id, Name: "User", Email: id.String() + "@example.com", Role: role}
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetCourseByID(_ context.Context, id uuid.UUID) (*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, fmt.Errorf("course %s: %w", id, store.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) CreatePaymentOrder(_ context.Context, order *models.PaymentOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[order.GatewayOrderID]; exists {
		return errors.New("duplicate gateway order id")
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	m.orders[order.GatewayOrderID] = &cp
	return nil
}

func (m *memStore) GetPaymentOrderByGatewayID(_ context.Context, gatewayOrderID string) (*models.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	o, ok := m.orders[gatewayOrderID]
	if !ok {
		return nil, fmt.Errorf("payment order %s: %w", gatewayOrderID, store.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) MarkPaymentOrderPaid(_ context.Context, c *models.PaymentConfirmation) (*models.PaymentOrder, bool, error) {
	if m.beforeMark != nil {
		m.beforeMark()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.markCalls++

	o, ok := m.orders[c.GatewayOrderID]
	if !ok || o.Paid {
		return nil, false, nil
	}
	paymentID := c.GatewayPaymentID
	paidAt := c.PaidAt
	o.Paid = true
	o.PaidAt = &paidAt
	o.GatewayPaymentID = &paymentID
	if c.Signature != "" {
		sig := c.Signature
		o.GatewaySignature = &sig
	}
	if c.Method != "" {
		o.Method = c.Method
	}
	cp := *o
	return &cp, true, nil
}

func (m *memStore) GetPaymentOrdersByStudent(_ context.Context, studentID uuid.UUID) ([]models.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentOrder
	for _, o := range m.orders {
		if o.StudentID == studentID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) order(gatewayOrderID string) models.PaymentOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.orders[gatewayOrderID]
}

func (m *memStore) AddStudentToCourse(_ context.Context, courseID, studentID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rosterErr != nil {
		return false, m.rosterErr
	}
	return addToSet(m.roster, courseID, studentID), nil
}

func (m *memStore) AddCourseToStudent(_ context.Context, studentID, courseID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userErr != nil {
		return false, m.userErr
	}
	return addToSet(m.userCourses, studentID, courseID), nil
}

func addToSet(sets map[uuid.UUID]map[uuid.UUID]struct{}, key, member uuid.UUID) bool {
	set, ok := sets[key]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		sets[key] = set
	}
	if _, exists := set[member]; exists {
		return false
	}
	set[member] = struct{}{}
	return true
}

func (m *memStore) GetStudentEnrollments(_ context.Context, studentID uuid.UUID) ([]models.CourseEnrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CourseEnrollment
	for courseID := range m.userCourses[studentID] {
		out = append(out, models.CourseEnrollment{StudentID: studentID, CourseID: courseID})
	}
	return out, nil
}

func (m *memStore) rosterSize(courseID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.roster[courseID])
}

func (m *memStore) enrolledCourses(studentID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.userCourses[studentID])
}

func (m *memStore) CreateInvoice(_ context.Context, inv *models.Invoice) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invoices {
		if existing.OrderID == inv.OrderID {
			return false, nil
		}
	}
	inv.CreatedAt = time.Now()
	cp := *inv
	m.invoices[inv.ID] = &cp
	return true, nil
}

func (m *memStore) GetInvoiceByID(_ context.Context, id uuid.UUID) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", id, store.ErrNotFound)
	}
	cp := *inv
	return &cp, nil
}

func (m *memStore) GetInvoicesByStudent(_ context.Context, studentID uuid.UUID) ([]models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Invoice
	for _, inv := range m.invoices {
		if inv.StudentID == studentID {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) GetPaidInvoicesByCreator(_ context.Context, creatorID uuid.UUID) ([]models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Invoice
	for _, inv := range m.invoices {
		c, ok := m.courses[inv.CourseID]
		if ok && c.CreatorID == creatorID && inv.Status == models.InvoiceStatusPaid {
			out = append(out, *inv)
		}
	}
	return out, nil
}

// fakeGateway hands out sequential order ids and signs with secret.
type fakeGateway struct {
	mu       sync.Mutex
	secret   string
	keyID    string
	nextID   string
	err      error
	requests []*gateway.OrderRequest
}

func (g *fakeGateway) CreateOrder(_ context.Context, req *gateway.OrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	id := g.nextID
	if id == "" {
		id = "order_" + uuid.NewString()[:8]
	}
	return &gateway.Order{
		ID:        id,
		Entity:    "order",
		Amount:    req.Amount,
		AmountDue: req.Amount,
		Currency:  req.Currency,
		Receipt:   req.Receipt,
		Status:    "created",
	}, nil
}

func (g *fakeGateway) VerifyPaymentSignature(orderID, paymentID, sig string) bool {
	return signature.VerifyPayment(orderID, paymentID, sig, g.secret)
}

func (g *fakeGateway) KeyID() string { return g.keyID }

func (g *fakeGateway) Mode() string { return gateway.ModeFromKeyID(g.keyID) }

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type fakePublisher struct {
	mu               sync.Mutex
	orderPaid        []*models.OrderPaidEvent
	enrolled         []*models.CourseEnrolledEvent
	enrollmentFailed []*models.EnrollmentFailedEvent
}

func (p *fakePublisher) PublishOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderPaid = append(p.orderPaid, e)
	return nil
}

func (p *fakePublisher) PublishCourseEnrolled(_ context.Context, e *models.CourseEnrolledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enrolled = append(p.enrolled, e)
	return nil
}

func (p *fakePublisher) PublishEnrollmentFailed(_ context.Context, e *models.EnrollmentFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enrollmentFailed = append(p.enrollmentFailed, e)
	return nil
}

func (p *fakePublisher) counts() (paid, enrolled, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orderPaid), len(p.enrolled), len(p.enrollmentFailed)
}

type fakeDeduper struct {
	mu      sync.Mutex
	seen    map[string]bool
	err     error
	forgets int
}

func (d *fakeDeduper) MarkWebhookEvent(_ context.Context, eventID string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[eventID] {
		return false, nil
	}
	d.seen[eventID] = true
	return true, nil
}

func (d *fakeDeduper) ForgetWebhookEvent(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
	d.forgets++
	return nil
}
