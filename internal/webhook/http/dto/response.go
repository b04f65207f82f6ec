// Package dto provides data transfer objects for webhook HTTP request and response handling.
package dto

import (
	"time"

	webhookDomain "github.com/allisson/ledgerhook/internal/webhook/domain"
)

// IngressResponse is the acknowledgment returned to the webhook provider.
type IngressResponse struct {
	Success   bool   `json:"success"`
	Processed bool   `json:"processed"`
	Error     string `json:"error,omitempty"`
}

// MapIngressResult converts an ingress result to an API response.
func MapIngressResult(result *webhookDomain.IngressResult) IngressResponse {
	return IngressResponse{
		Success:   result.Success,
		Processed: result.Processed,
		Error:     result.Error,
	}
}

// AuditLogResponse represents one webhook delivery in the audit trail.
type AuditLogResponse struct {
	ID          string         `json:"id"`
	EventType   string         `json:"event_type"`
	TxSignature string         `json:"tx_signature"`
	Payload     map[string]any `json:"payload,omitempty"`
	Processed   bool           `json:"processed"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ListAuditLogsResponse wraps a page of audit log entries.
type ListAuditLogsResponse struct {
	AuditLogs []AuditLogResponse `json:"audit_logs"`
	Count     int                `json:"count"`
}

// MapAuditLogsToListResponse converts domain audit logs to an API response.
func MapAuditLogsToListResponse(auditLogs []*webhookDomain.AuditLog) ListAuditLogsResponse {
	responses := make([]AuditLogResponse, 0, len(auditLogs))
	for _, auditLog := range auditLogs {
		responses = append(responses, AuditLogResponse{
			ID:          auditLog.ID.String(),
			EventType:   auditLog.EventType,
			TxSignature: auditLog.TxSignature,
			Payload:     auditLog.Payload,
			Processed:   auditLog.Processed,
			Error:       auditLog.Error,
			CreatedAt:   auditLog.CreatedAt,
		})
	}
	return ListAuditLogsResponse{
		AuditLogs: responses,
		Count:     len(responses),
	}
}
