package manager

import "exposemgr/internal/domain"

// UpdatePolicy deep-merges patch onto the on-disk policy, persists it,
// and atomically swaps the effective policy pointer every subsequent
// request is checked against.
func (m *Manager) UpdatePolicy(patch []byte) (domain.UpdatePolicyResult, error) {
	merged, warnings, err := m.policyStore.WriteMerged(patch)
	if err != nil {
		return domain.UpdatePolicyResult{}, domain.WrapError(domain.KindInternal, "update_policy", err)
	}

	ignore, err := m.policyStore.ReloadIgnoreMatcher()
	if err != nil {
		return domain.UpdatePolicyResult{}, domain.WrapError(domain.KindInternal, "update_policy", err)
	}

	m.effective.Store(&effectivePolicy{policy: merged, ignore: ignore})

	m.auditStore.Append(domain.AuditEvent{
		Timestamp: m.clock.Now(),
		Event:     domain.EventPolicyUpdated,
		Details:   map[string]any{"warnings": warnings},
	})

	return domain.UpdatePolicyResult{Warnings: warnings}, nil
}
