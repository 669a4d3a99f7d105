// Package mocks provides in-memory repository implementations for unit
// tests. Identifier sequences are scoped to each mock instance, never
// process-wide.
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relink-dev/relink/internal/models"
	"github.com/relink-dev/relink/internal/repository"
)

// MockLinkRepository implements repository.LinkRepository.
type MockLinkRepository struct {
	mu     sync.RWMutex
	links  map[string]*models.Link // id -> link
	byCode map[string]string       // short_code -> id
	nextID int
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links:  make(map[string]*models.Link),
		byCode: make(map[string]string),
		nextID: 1,
	}
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byCode[link.ShortCode]; exists {
		return repository.ErrCodeExists
	}

	if link.ID == "" {
		link.ID = fmt.Sprintf("link-%d", m.nextID)
		m.nextID++
	}
	copied := *link
	m.links[link.ID] = &copied
	m.byCode[link.ShortCode] = link.ID
	return nil
}

func (m *MockLinkRepository) GetByID(ctx context.Context, id string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[id]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	copied := *link
	return &copied, nil
}

func (m *MockLinkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.byCode[code]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	copied := *m.links[id]
	return &copied, nil
}

func (m *MockLinkRepository) SoftDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[id]
	if !exists || !link.IsActive {
		return repository.ErrLinkNotFound
	}
	link.IsActive = false
	now := time.Now()
	link.UpdatedAt = &now
	return nil
}

func (m *MockLinkRepository) ListForOrg(ctx context.Context, orgID string) ([]*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var links []*models.Link
	for _, link := range m.links {
		if link.OrgID == orgID {
			copied := *link
			links = append(links, &copied)
		}
	}
	return links, nil
}

func (m *MockLinkRepository) DeleteForOrg(ctx context.Context, orgID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, link := range m.links {
		if link.OrgID == orgID {
			delete(m.byCode, link.ShortCode)
			delete(m.links, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MockLinkRepository) Reassign(ctx context.Context, linkIDs []string, targetOrgID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var moved int64
	for _, id := range linkIDs {
		if link, exists := m.links[id]; exists {
			link.OrgID = targetOrgID
			moved++
		}
	}
	return moved, nil
}

func (m *MockLinkRepository) IncrementClickCount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[id]
	if !exists {
		return repository.ErrLinkNotFound
	}
	link.ClickCount++
	return nil
}

// MockCacheRepository implements repository.CacheRepository. It honors TTLs
// lazily on read, which is enough for window-reset tests driven by a fake
// clock.
type MockCacheRepository struct {
	mu       sync.RWMutex
	mappings map[string]*models.LinkMapping
	windows  map[string]windowEntry

	// FailSets makes SetMapping fail, for best-effort path tests.
	FailSets bool
	// FailDeletes makes DeleteMapping fail.
	FailDeletes bool
	// FailWindows makes window operations fail, for fail-open tests.
	FailWindows bool
	// AllCodesTaken makes every mapping lookup hit, to exhaust generation.
	AllCodesTaken bool

	Now func() time.Time
}

type windowEntry struct {
	window    models.RateLimitWindow
	expiresAt time.Time
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		mappings: make(map[string]*models.LinkMapping),
		windows:  make(map[string]windowEntry),
		Now:      time.Now,
	}
}

func (m *MockCacheRepository) GetMapping(ctx context.Context, code string) (*models.LinkMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.AllCodesTaken {
		return &models.LinkMapping{LinkID: "occupied", IsActive: true}, nil
	}

	mapping, exists := m.mappings[code]
	if !exists {
		return nil, repository.ErrCacheMiss
	}
	copied := *mapping
	return &copied, nil
}

func (m *MockCacheRepository) SetMapping(ctx context.Context, code string, mapping *models.LinkMapping, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSets {
		return fmt.Errorf("cache unavailable")
	}
	copied := *mapping
	m.mappings[code] = &copied
	return nil
}

func (m *MockCacheRepository) DeleteMapping(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailDeletes {
		return fmt.Errorf("cache unavailable")
	}
	delete(m.mappings, code)
	return nil
}

func (m *MockCacheRepository) GetWindow(ctx context.Context, key string) (*models.RateLimitWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWindows {
		return nil, fmt.Errorf("cache unavailable")
	}

	entry, exists := m.windows[key]
	if !exists || m.Now().After(entry.expiresAt) {
		return nil, repository.ErrCacheMiss
	}
	copied := entry.window
	return &copied, nil
}

func (m *MockCacheRepository) SetWindow(ctx context.Context, key string, window *models.RateLimitWindow, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWindows {
		return fmt.Errorf("cache unavailable")
	}

	m.windows[key] = windowEntry{
		window:    *window,
		expiresAt: m.Now().Add(ttl),
	}
	return nil
}

// MockBillingRepository implements repository.BillingRepository.
type MockBillingRepository struct {
	mu       sync.RWMutex
	accounts map[string]*models.BillingAccount
	orgs     map[string]*models.Organization
	counters map[string]int64 // accountID|month -> count

	// FailIncrements makes IncrementMonthlyUsage fail, for commit failure
	// paths.
	FailIncrements bool
}

func NewMockBillingRepository() *MockBillingRepository {
	return &MockBillingRepository{
		accounts: make(map[string]*models.BillingAccount),
		orgs:     make(map[string]*models.Organization),
		counters: make(map[string]int64),
	}
}

func (m *MockBillingRepository) AddAccount(account *models.BillingAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
}

func (m *MockBillingRepository) AddOrganization(org *models.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs[org.ID] = org
}

func (m *MockBillingRepository) GetBillingAccount(ctx context.Context, id string) (*models.BillingAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, exists := m.accounts[id]
	if !exists {
		return nil, repository.ErrBillingAccountNotFound
	}
	return account, nil
}

func (m *MockBillingRepository) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	org, exists := m.orgs[id]
	if !exists {
		return nil, repository.ErrOrganizationNotFound
	}
	return org, nil
}

func (m *MockBillingRepository) MonthlyUsage(ctx context.Context, accountID, month string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[accountID+"|"+month], nil
}

func (m *MockBillingRepository) IncrementMonthlyUsage(ctx context.Context, accountID, month string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailIncrements {
		return fmt.Errorf("counter store unavailable")
	}
	m.counters[accountID+"|"+month] += delta
	return nil
}

func (m *MockBillingRepository) DecrementMonthlyUsage(ctx context.Context, accountID, month string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := accountID + "|" + month
	m.counters[key] -= delta
	if m.counters[key] < 0 {
		m.counters[key] = 0
	}
	return nil
}

func (m *MockBillingRepository) ResetMonthlyUsage(ctx context.Context, accountID, month string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[accountID+"|"+month] = 0
	return nil
}

// MockClickRepository implements repository.ClickRepository.
type MockClickRepository struct {
	mu     sync.RWMutex
	events []*models.AnalyticsEvent
}

func NewMockClickRepository() *MockClickRepository {
	return &MockClickRepository{}
}

func (m *MockClickRepository) RecordEvent(ctx context.Context, event *models.AnalyticsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *event
	m.events = append(m.events, &copied)
	return nil
}

func (m *MockClickRepository) Events() []*models.AnalyticsEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*models.AnalyticsEvent(nil), m.events...)
}

func (m *MockClickRepository) MonthlyEventCount(ctx context.Context, billingAccountID string, monthStart time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.events)), nil
}

func (m *MockClickRepository) GetStats(ctx context.Context, shortCode string) (*models.ClickStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.ClickStats{ShortCode: shortCode}
	uniqueIPs := make(map[string]bool)
	for _, event := range m.events {
		stats.TotalClicks++
		uniqueIPs[event.IPAddress] = true
	}
	stats.UniqueClicks = int64(len(uniqueIPs))
	return stats, nil
}

func (m *MockClickRepository) GetDailyStats(ctx context.Context, shortCode string, days int) ([]models.DailyClickStats, error) {
	return []models.DailyClickStats{}, nil
}
