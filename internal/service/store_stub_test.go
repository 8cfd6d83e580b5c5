package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/entitlement-api/internal/models"
	"github.com/noah-isme/entitlement-api/internal/repository"
)

// memStore is an in-memory repository.Store used by the service tests.
// WithTx holds a store-wide mutex for the duration of the callback,
// standing in for the row locks that serialize concurrent transactions
// on the real store.
type memStore struct {
	mu         sync.Mutex
	txMu       sync.Mutex
	grants     []models.EntitlementGrant
	entries    []models.LedgerEntry
	holds      map[string]*models.ServiceHold
	outbox     []*models.OutboxEvent
	contracts  map[string]*models.Contract
	statements map[string]*models.StatementJob

	lockHeldElsewhere bool
	insertLedgerErr   error
}

func newMemStore() *memStore {
	return &memStore{
		holds:      make(map[string]*models.ServiceHold),
		contracts:  make(map[string]*models.Contract),
		statements: make(map[string]*models.StatementJob),
	}
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, memTx{m})
}

// memTx is the tx-bound view handed to WithTx callbacks; a nested
// WithTx reuses the open transaction, mirroring SQLStore.
type memTx struct {
	*memStore
}

func (t memTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return fn(ctx, t)
}

func (m *memStore) CreateGrant(ctx context.Context, grant *models.EntitlementGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = time.Now().UTC()
	}
	m.grants = append(m.grants, *grant)
	return nil
}

func (m *memStore) ListGrants(ctx context.Context, studentID, serviceType string) ([]models.EntitlementGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EntitlementGrant
	for _, g := range m.grants {
		if g.StudentID == studentID && (serviceType == "" || g.ServiceType == serviceType) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memStore) GrantsForUpdate(ctx context.Context, studentID, serviceType string) ([]models.EntitlementGrant, error) {
	return m.ListGrants(ctx, studentID, serviceType)
}

func (m *memStore) InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertLedgerErr != nil {
		return m.insertLedgerErr
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memStore) GetLedgerEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == id {
			entry := m.entries[i]
			return &entry, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) ListLedgerEntries(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.LedgerEntry
	for _, e := range m.entries {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		if filter.ServiceType != "" && e.ServiceType != filter.ServiceType {
			continue
		}
		if filter.OperationType != "" && string(e.OperationType) != filter.OperationType {
			continue
		}
		if filter.BookingID != "" && (e.RelatedBookingID == nil || *e.RelatedBookingID != filter.BookingID) {
			continue
		}
		matched = append(matched, e)
	}
	total := len(matched)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *memStore) SumLedgerNet(ctx context.Context, studentID, serviceType string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, e := range m.entries {
		if e.StudentID == studentID && e.ServiceType == serviceType {
			sum += e.QuantityChange
		}
	}
	return sum, nil
}

func (m *memStore) NetConsumedForBooking(ctx context.Context, studentID, serviceType, bookingID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, e := range m.entries {
		if e.StudentID != studentID || e.ServiceType != serviceType {
			continue
		}
		if e.RelatedBookingID == nil || *e.RelatedBookingID != bookingID {
			continue
		}
		if e.OperationType != models.OperationConsumption && e.OperationType != models.OperationRefund {
			continue
		}
		sum -= e.QuantityChange
	}
	return sum, nil
}

func (m *memStore) CreateHold(ctx context.Context, hold *models.ServiceHold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hold.ID == "" {
		hold.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if hold.CreatedAt.IsZero() {
		hold.CreatedAt = now
	}
	hold.UpdatedAt = now
	if hold.Status == "" {
		hold.Status = models.HoldStatusActive
	}
	copied := *hold
	m.holds[hold.ID] = &copied
	return nil
}

func (m *memStore) GetHold(ctx context.Context, id string) (*models.ServiceHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hold, ok := m.holds[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *hold
	return &copied, nil
}

func (m *memStore) ActiveHolds(ctx context.Context, studentID, serviceType string) ([]models.ServiceHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ServiceHold
	for _, hold := range m.holds {
		if hold.Status == models.HoldStatusActive && hold.StudentID == studentID && hold.ServiceType == serviceType {
			out = append(out, *hold)
		}
	}
	return out, nil
}

func (m *memStore) ActiveHoldsByBooking(ctx context.Context, bookingID string) ([]models.ServiceHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ServiceHold
	for _, hold := range m.holds {
		if hold.Status == models.HoldStatusActive && hold.RelatedBookingID != nil && *hold.RelatedBookingID == bookingID {
			out = append(out, *hold)
		}
	}
	return out, nil
}

func (m *memStore) TransitionHold(ctx context.Context, id string, from, to models.HoldStatus, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hold, ok := m.holds[id]
	if !ok || hold.Status != from {
		return false, nil
	}
	now := time.Now().UTC()
	hold.Status = to
	hold.Reason = &reason
	hold.UpdatedAt = now
	if to.Terminal() {
		hold.ClosedAt = &now
	}
	return true, nil
}

func (m *memStore) SetHoldBooking(ctx context.Context, id, bookingID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hold, ok := m.holds[id]
	if !ok {
		return false, nil
	}
	hold.RelatedBookingID = &bookingID
	hold.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memStore) ExpireHoldsBefore(ctx context.Context, cutoff time.Time) ([]models.ServiceHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	reason := "hold ttl elapsed"
	var expired []models.ServiceHold
	for _, hold := range m.holds {
		if hold.Status == models.HoldStatusActive && hold.CreatedAt.Before(cutoff) {
			hold.Status = models.HoldStatusExpired
			hold.Reason = &reason
			hold.UpdatedAt = now
			hold.ClosedAt = &now
			expired = append(expired, *hold)
		}
	}
	return expired, nil
}

func (m *memStore) InsertOutboxEvent(ctx context.Context, event *models.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = models.OutboxStatusPending
	}
	if event.MaxRetries <= 0 {
		event.MaxRetries = models.DefaultOutboxMaxRetries
	}
	copied := *event
	m.outbox = append(m.outbox, &copied)
	return nil
}

func (m *memStore) ClaimPendingEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OutboxEvent
	for _, event := range m.outbox {
		if event.Status == models.OutboxStatusPending && event.RetryCount < event.MaxRetries {
			out = append(out, *event)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) MarkEventPublished(ctx context.Context, id string, publishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range m.outbox {
		if event.ID == id {
			event.Status = models.OutboxStatusPublished
			event.PublishedAt = &publishedAt
			event.ErrorMessage = nil
		}
	}
	return nil
}

func (m *memStore) RecordPublishFailure(ctx context.Context, id, errorMessage string) (models.OutboxStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range m.outbox {
		if event.ID == id {
			event.RetryCount++
			event.ErrorMessage = &errorMessage
			if event.RetryCount >= event.MaxRetries {
				event.Status = models.OutboxStatusFailed
			}
			return event.Status, nil
		}
	}
	return "", sql.ErrNoRows
}

func (m *memStore) ResetFailedEvents(ctx context.Context, newerThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var reset int64
	for _, event := range m.outbox {
		if event.Status == models.OutboxStatusFailed && !event.CreatedAt.Before(newerThan) {
			event.Status = models.OutboxStatusPending
			event.RetryCount = 0
			event.ErrorMessage = nil
			reset++
		}
	}
	return reset, nil
}

func (m *memStore) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*models.OutboxEvent
	var deleted int64
	for _, event := range m.outbox {
		if event.Status == models.OutboxStatusPublished && event.PublishedAt != nil && event.PublishedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	m.outbox = kept
	return deleted, nil
}

func (m *memStore) CountOutboxByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.OutboxStatus]int)
	for _, event := range m.outbox {
		counts[event.Status]++
	}
	return counts, nil
}

func (m *memStore) TryPublishLock(ctx context.Context, key int64) (repository.UnlockFunc, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockHeldElsewhere {
		return nil, false, nil
	}
	return func() {}, true, nil
}

func (m *memStore) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contract, ok := m.contracts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *contract
	return &copied, nil
}

func (m *memStore) ActivateContract(ctx context.Context, id string, activatedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contract, ok := m.contracts[id]
	if !ok || contract.Status != models.ContractStatusSigned {
		return false, nil
	}
	contract.Status = models.ContractStatusActive
	contract.ActivatedAt = &activatedAt
	contract.UpdatedAt = activatedAt
	return true, nil
}

func (m *memStore) CreateStatementJob(ctx context.Context, job *models.StatementJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = models.StatementStatusQueued
	}
	copied := *job
	m.statements[job.ID] = &copied
	return nil
}

func (m *memStore) GetStatementJob(ctx context.Context, id string) (*models.StatementJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.statements[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *memStore) MarkStatementProcessing(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.statements[id]; ok {
		job.Status = models.StatementStatusProcessing
	}
	return nil
}

func (m *memStore) FinishStatementJob(ctx context.Context, id, filePath, resultURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.statements[id]; ok {
		job.Status = models.StatementStatusFinished
		job.FilePath = &filePath
		job.ResultURL = &resultURL
	}
	return nil
}

func (m *memStore) FailStatementJob(ctx context.Context, id, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.statements[id]; ok {
		job.Status = models.StatementStatusFailed
		job.ErrorMessage = &errorMessage
	}
	return nil
}

// outboxEventsOfType filters the stub's outbox rows for assertions.
func (m *memStore) outboxEventsOfType(eventType string) []models.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OutboxEvent
	for _, event := range m.outbox {
		if event.EventType == eventType {
			out = append(out, *event)
		}
	}
	return out
}

var _ repository.Store = (*memStore)(nil)
var _ repository.Store = memTx{}
