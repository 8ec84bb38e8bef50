// Package memstore is an in-memory auto-update Store for tests and local tooling.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"intuneget/internal/autoupdate/models"
	"intuneget/internal/autoupdate/services"
)

// Store operation names accepted by FailOn
const (
	OpCreatePolicy         = "CreatePolicy"
	OpGetPolicy            = "GetPolicy"
	OpFindEligible         = "FindEligiblePolicies"
	OpClaimPolicy          = "ClaimPolicy"
	OpRecordSuccess        = "RecordPolicySuccess"
	OpIncrementFailures    = "IncrementPolicyFailures"
	OpDisablePolicy        = "DisablePolicy"
	OpInsertHistory        = "InsertHistory"
	OpAttachPackagingJob   = "AttachPackagingJob"
	OpTransitionHistory    = "TransitionHistory"
	OpCountTenantCompleted = "CountCompletedForTenantSince"
	OpCountUser            = "CountForUserSince"
	OpLatestTriggeredAt    = "LatestTriggeredAt"
	OpInsertPackagingJob   = "InsertPackagingJob"
	OpGetTenantConsent     = "GetTenantConsent"
)

// MemStore is a thread-safe Store backed by maps
type MemStore struct {
	mu       sync.RWMutex
	policies map[string]models.AppUpdatePolicy
	history  map[string]models.AutoUpdateHistory
	jobs     map[string]models.PackagingJob
	consent  map[string]models.TenantConsent
	failures map[string]error
}

func New() *MemStore {
	return &MemStore{
		policies: make(map[string]models.AppUpdatePolicy),
		history:  make(map[string]models.AutoUpdateHistory),
		jobs:     make(map[string]models.PackagingJob),
		consent:  make(map[string]models.TenantConsent),
		failures: make(map[string]error),
	}
}

// FailOn makes every later call of op return err; a nil err clears it
func (m *MemStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *MemStore) injected(op string) error {
	return m.failures[op]
}

// PutPolicy stores a policy as-is
func (m *MemStore) PutPolicy(policy models.AppUpdatePolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[policy.ID] = clonePolicy(policy)
}

// PutHistory stores a history record as-is
func (m *MemStore) PutHistory(history models.AutoUpdateHistory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[history.ID] = history
}

// PutConsent stores a tenant consent record
func (m *MemStore) PutConsent(consent models.TenantConsent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consent[consent.TenantID] = consent
}

// Policy returns a copy of a stored policy
func (m *MemStore) Policy(id string) (models.AppUpdatePolicy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[id]
	return clonePolicy(p), ok
}

// History returns all history records ordered by trigger time
func (m *MemStore) History() []models.AutoUpdateHistory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AutoUpdateHistory, 0, len(m.history))
	for _, h := range m.history {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TriggeredAt.Equal(out[j].TriggeredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].TriggeredAt.Before(out[j].TriggeredAt)
	})
	return out
}

// Jobs returns all packaging jobs ordered by id
func (m *MemStore) Jobs() []models.PackagingJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.PackagingJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemStore) CreatePolicy(_ context.Context, policy *models.AppUpdatePolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpCreatePolicy); err != nil {
		return err
	}
	for _, p := range m.policies {
		if p.UserID == policy.UserID && p.WingetID == policy.WingetID {
			return services.ErrPolicyExists
		}
	}
	m.policies[policy.ID] = clonePolicy(*policy)
	return nil
}

func (m *MemStore) GetPolicy(_ context.Context, id string) (*models.AppUpdatePolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.injected(OpGetPolicy); err != nil {
		return nil, err
	}
	p, ok := m.policies[id]
	if !ok {
		return nil, services.ErrPolicyNotFound
	}
	p = clonePolicy(p)
	return &p, nil
}

func (m *MemStore) ListPolicies(_ context.Context, filter models.PolicyFilter) ([]models.AppUpdatePolicy, error) {
	return m.selectPolicies(func(p models.AppUpdatePolicy) bool {
		return (filter.UserID == "" || p.UserID == filter.UserID) &&
			(filter.TenantID == "" || p.TenantID == filter.TenantID) &&
			(filter.WingetID == "" || p.WingetID == filter.WingetID)
	}), nil
}

func (m *MemStore) FindEligiblePolicies(_ context.Context, userID, tenantID string, maxFailures int) ([]models.AppUpdatePolicy, error) {
	m.mu.RLock()
	err := m.injected(OpFindEligible)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return m.selectPolicies(func(p models.AppUpdatePolicy) bool {
		return p.PolicyType == models.PolicyTypeAutoUpdate &&
			p.IsEnabled &&
			p.ConsecutiveFailures < maxFailures &&
			(userID == "" || p.UserID == userID) &&
			(tenantID == "" || p.TenantID == tenantID)
	}), nil
}

func (m *MemStore) selectPolicies(match func(models.AppUpdatePolicy) bool) []models.AppUpdatePolicy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.AppUpdatePolicy{}
	for _, p := range m.policies {
		if match(p) {
			out = append(out, clonePolicy(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemStore) UpdatePolicy(_ context.Context, id string, patch models.PolicyPatch, now time.Time) (*models.AppUpdatePolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok {
		return nil, services.ErrPolicyNotFound
	}
	if patch.PolicyType != nil {
		p.PolicyType = *patch.PolicyType
	}
	if patch.IsEnabled != nil {
		p.IsEnabled = *patch.IsEnabled
	}
	if patch.DeploymentConfig != nil {
		p.DeploymentConfig = patch.DeploymentConfig
	}
	if patch.OriginalUploadHistoryID != nil {
		p.OriginalUploadHistoryID = *patch.OriginalUploadHistoryID
	}
	if patch.ResetFailures {
		p.ConsecutiveFailures = 0
		p.InFlightUntil = nil
	}
	p.UpdatedAt = now
	m.policies[id] = clonePolicy(p)
	p = clonePolicy(p)
	return &p, nil
}

func (m *MemStore) ClaimPolicy(_ context.Context, id string, expectedFailures int, now, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpClaimPolicy); err != nil {
		return false, err
	}
	p, ok := m.policies[id]
	if !ok || p.ConsecutiveFailures != expectedFailures {
		return false, nil
	}
	if p.InFlightUntil != nil && p.InFlightUntil.After(now) {
		return false, nil
	}
	p.InFlightUntil = &until
	m.policies[id] = p
	return true, nil
}

func (m *MemStore) RecordPolicySuccess(_ context.Context, id, version string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpRecordSuccess); err != nil {
		return err
	}
	p, ok := m.policies[id]
	if !ok {
		return services.ErrPolicyNotFound
	}
	p.LastAutoUpdateAt = &at
	p.LastAutoUpdateVersion = version
	p.ConsecutiveFailures = 0
	p.InFlightUntil = nil
	p.UpdatedAt = at
	m.policies[id] = p
	return nil
}

func (m *MemStore) IncrementPolicyFailures(_ context.Context, id string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpIncrementFailures); err != nil {
		return 0, err
	}
	p, ok := m.policies[id]
	if !ok {
		return 0, services.ErrPolicyNotFound
	}
	p.ConsecutiveFailures++
	p.InFlightUntil = nil
	p.UpdatedAt = now
	m.policies[id] = p
	return p.ConsecutiveFailures, nil
}

func (m *MemStore) DisablePolicy(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpDisablePolicy); err != nil {
		return err
	}
	p, ok := m.policies[id]
	if !ok {
		return services.ErrPolicyNotFound
	}
	p.IsEnabled = false
	p.UpdatedAt = now
	m.policies[id] = p
	return nil
}

func (m *MemStore) InsertHistory(_ context.Context, history *models.AutoUpdateHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpInsertHistory); err != nil {
		return err
	}
	m.history[history.ID] = *history
	return nil
}

func (m *MemStore) GetHistory(_ context.Context, id string) (*models.AutoUpdateHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.history[id]
	if !ok {
		return nil, services.ErrHistoryNotFound
	}
	return &h, nil
}

func (m *MemStore) ListHistory(_ context.Context, policyID string, limit int) ([]models.AutoUpdateHistory, error) {
	all := m.History()
	out := []models.AutoUpdateHistory{}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].PolicyID != policyID {
			continue
		}
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) AttachPackagingJob(_ context.Context, historyID, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpAttachPackagingJob); err != nil {
		return err
	}
	h, ok := m.history[historyID]
	if !ok {
		return services.ErrHistoryNotFound
	}
	if h.Status != models.HistoryStatusPending {
		return services.ErrInvalidTransition
	}
	h.PackagingJobID = jobID
	h.Status = models.HistoryStatusPackaging
	m.history[historyID] = h
	return nil
}

func (m *MemStore) TransitionHistory(_ context.Context, id string, transition models.HistoryTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpTransitionHistory); err != nil {
		return err
	}
	h, ok := m.history[id]
	if !ok {
		return services.ErrHistoryNotFound
	}
	if h.Status.IsTerminal() {
		return services.ErrInvalidTransition
	}
	completedAt := transition.CompletedAt
	h.Status = transition.Status
	h.CompletedAt = &completedAt
	if transition.ErrorMessage != "" {
		h.ErrorMessage = transition.ErrorMessage
	}
	m.history[id] = h
	return nil
}

func (m *MemStore) CountCompletedForTenantSince(_ context.Context, tenantID string, since time.Time) (int64, error) {
	return m.countHistory(OpCountTenantCompleted, func(h models.AutoUpdateHistory) bool {
		return h.TenantID == tenantID && h.Status == models.HistoryStatusCompleted && !h.TriggeredAt.Before(since)
	})
}

func (m *MemStore) CountForUserSince(_ context.Context, userID string, since time.Time) (int64, error) {
	return m.countHistory(OpCountUser, func(h models.AutoUpdateHistory) bool {
		return h.UserID == userID && !h.TriggeredAt.Before(since)
	})
}

func (m *MemStore) countHistory(op string, match func(models.AutoUpdateHistory) bool) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.injected(op); err != nil {
		return 0, err
	}
	var n int64
	for _, h := range m.history {
		if match(h) {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) LatestTriggeredAt(_ context.Context) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.injected(OpLatestTriggeredAt); err != nil {
		return nil, err
	}
	var latest *time.Time
	for _, h := range m.history {
		if latest == nil || h.TriggeredAt.After(*latest) {
			t := h.TriggeredAt
			latest = &t
		}
	}
	return latest, nil
}

func (m *MemStore) InsertPackagingJob(_ context.Context, job *models.PackagingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpInsertPackagingJob); err != nil {
		return err
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *MemStore) GetTenantConsent(_ context.Context, tenantID string) (*models.TenantConsent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.injected(OpGetTenantConsent); err != nil {
		return nil, err
	}
	c, ok := m.consent[tenantID]
	if !ok {
		return nil, services.ErrConsentNotFound
	}
	return &c, nil
}

func clonePolicy(p models.AppUpdatePolicy) models.AppUpdatePolicy {
	if p.DeploymentConfig != nil {
		cfg := *p.DeploymentConfig
		p.DeploymentConfig = &cfg
	}
	if p.InFlightUntil != nil {
		t := *p.InFlightUntil
		p.InFlightUntil = &t
	}
	if p.LastAutoUpdateAt != nil {
		t := *p.LastAutoUpdateAt
		p.LastAutoUpdateAt = &t
	}
	return p
}

var _ services.Store = (*MemStore)(nil)
