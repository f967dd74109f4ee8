package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// Registry is an in-memory rule repository. `applock check --from` loads
// a rule file into one to evaluate it without touching the store.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]domain.TrackedAppRule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rules: make(map[string]domain.TrackedAppRule),
	}
}

// NewRegistryWithRules creates a registry with the given rules (for testing).
func NewRegistryWithRules(rules ...domain.TrackedAppRule) *Registry {
	r := NewRegistry()
	for _, rule := range rules {
		r.rules[rule.PackageName] = cloneRule(rule)
	}
	return r
}

// GetRule returns a copy of the rule for a package, or nil.
func (r *Registry) GetRule(ctx context.Context, packageName string) (*domain.TrackedAppRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[packageName]
	if !ok {
		return nil, nil
	}
	out := cloneRule(rule)
	return &out, nil
}

// SaveRule inserts or replaces a rule.
func (r *Registry) SaveRule(ctx context.Context, rule domain.TrackedAppRule) error {
	if rule.PackageName == "" {
		return fmt.Errorf("rule has no package name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.PackageName] = cloneRule(rule)
	return nil
}

// DeleteRule removes a rule. Deleting an unknown package is a no-op.
func (r *Registry) DeleteRule(ctx context.Context, packageName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, packageName)
	return nil
}

// ListRules returns all rules sorted by package name.
func (r *Registry) ListRules(ctx context.Context) ([]domain.TrackedAppRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.TrackedAppRule, 0, len(r.rules))
	for _, rule := range r.rules {
		result = append(result, cloneRule(rule))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PackageName < result[j].PackageName
	})
	return result, nil
}

func cloneRule(rule domain.TrackedAppRule) domain.TrackedAppRule {
	if rule.LockDates != nil {
		rule.LockDates = append([]string(nil), rule.LockDates...)
	}
	return rule
}

// Ensure Registry implements domain.RuleRepository.
var _ domain.RuleRepository = (*Registry)(nil)
