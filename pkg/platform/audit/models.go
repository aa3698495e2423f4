package audit

import (
	"context"
	"time"

	id "referral/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// Sinks may route or retain categories differently.
type EventCategory string

const (
	// CategoryCompliance covers events that change who referred whom.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected attempts worth watching for abuse,
	// such as repeated self-referral.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine profile activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	AccountID id.AccountID
	Action    string
	// Subject is the other party of the action, e.g. the referrer's account
	// for a redemption.
	Subject   string
	Reason    string
	RequestID string
	ClientIP  string
	// Device is a short label derived from the User-Agent.
	Device  string
	TraceID string
}

type AuditEvent string

const (
	EventProfileCreated     AuditEvent = "profile_created"
	EventProfileRenamed     AuditEvent = "profile_renamed"
	EventReferralRedeemed   AuditEvent = "referral_redeemed"
	EventRedemptionRejected AuditEvent = "redemption_rejected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventReferralRedeemed:   CategoryCompliance,
	EventRedemptionRejected: CategorySecurity,
	EventProfileCreated:     CategoryOperations,
	EventProfileRenamed:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store is a destination for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
