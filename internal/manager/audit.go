package manager

import "exposemgr/internal/domain"

// AuditQuery returns the last Limit matching audit.jsonl events, in file
// order (oldest first).
func (m *Manager) AuditQuery(filter domain.AuditQueryFilter) ([]domain.AuditEvent, error) {
	events, err := m.auditStore.Query(filter)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "audit_query", err)
	}
	return events, nil
}

// AuditExport writes matching audit events to a JSONL file and records
// the export itself as an audit event.
func (m *Manager) AuditExport(req domain.AuditExportRequest) (domain.AuditExportResult, error) {
	result, err := m.auditStore.Export(req, m.clock.Now())
	if err != nil {
		return domain.AuditExportResult{}, domain.WrapError(domain.KindInternal, "audit_export", err)
	}
	return result, nil
}
