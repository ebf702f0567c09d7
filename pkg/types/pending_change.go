package types

import (
	"time"

	"github.com/google/uuid"

	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// PendingChange records a requester-initiated status change awaiting admin
// approval. It lives on the subscription as a jsonb column so the status
// enum itself never carries transient "pending_*" values.
type PendingChange struct {
	RequestedStatus enums.SubscriptionStatus `json:"requested_status"`
	RequestedBy     uuid.UUID                `json:"requested_by"`
	RequestedAt     time.Time                `json:"requested_at"`
	Reason          string                   `json:"reason,omitempty"`
}
