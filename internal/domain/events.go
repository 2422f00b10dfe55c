package domain

import "time"

// Event types
const (
	EventTypeBalanceUpdated      = "balance.updated"
	EventTypeJournalPosted       = "journal.posted"
	EventTypeJournalReversed     = "journal.reversed"
	EventTypeBucketMoved         = "bucket.moved"
	EventTypeAccountCreated      = "account.created"
	EventTypeAccountClosed       = "account.closed"
	EventTypeAccountStatusChange = "account.status_changed"
)

// Aggregate types
const (
	AggregateTypeAccount      = "account"
	AggregateTypeJournalEntry = "journal_entry"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
	Attempts      int
}

// BalancesPayload renders all six buckets as strings.
func BalancesPayload(b Balances) map[string]any {
	return map[string]any{
		"current":   FormatAmount(b.Current),
		"available": FormatAmount(b.Available),
		"pending":   FormatAmount(b.Pending),
		"reserved":  FormatAmount(b.Reserved),
		"frozen":    FormatAmount(b.Frozen),
		"escrow":    FormatAmount(b.Escrow),
	}
}

// NewBalanceUpdatedEvent is emitted once per account touched by a committed write.
func NewBalanceUpdatedEvent(id string, acc *Account, reference string, at time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:            id,
		AggregateID:   acc.ID,
		AggregateType: AggregateTypeAccount,
		EventType:     EventTypeBalanceUpdated,
		Payload: map[string]any{
			"account_id":     acc.ID,
			"account_number": acc.AccountNumber,
			"user_id":        acc.UserID,
			"currency":       acc.Currency,
			"balances":       BalancesPayload(acc.Balances),
			"reference":      reference,
			"version":        acc.Version,
			"event_at":       at.UTC().Format(time.RFC3339Nano),
		},
		CreatedAt: at,
	}
}

// NewJournalPostedEvent announces a committed journal entry.
func NewJournalPostedEvent(id string, entry *JournalEntry) *OutboxEvent {
	eventType := EventTypeJournalPosted
	if entry.Kind == EntryKindReversal {
		eventType = EventTypeJournalReversed
	}

	legs := make([]map[string]any, 0, len(entry.Legs))
	for _, leg := range entry.Legs {
		legs = append(legs, map[string]any{
			"account_id": leg.AccountID,
			"debit":      FormatAmount(leg.Debit),
			"credit":     FormatAmount(leg.Credit),
			"bucket":     string(leg.bucket()),
		})
	}

	payload := map[string]any{
		"journal_entry_id": entry.ID,
		"reference":        entry.Reference,
		"kind":             string(entry.Kind),
		"currency":         entry.Currency,
		"legs":             legs,
		"actor":            entry.Actor,
	}
	if entry.ReversalOf != nil {
		payload["reversal_of"] = *entry.ReversalOf
	}

	return &OutboxEvent{
		ID:            id,
		AggregateID:   entry.ID,
		AggregateType: AggregateTypeJournalEntry,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     entry.CreatedAt,
	}
}

// NewAccountEvent covers account lifecycle events.
func NewAccountEvent(id, eventType string, acc *Account, at time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:            id,
		AggregateID:   acc.ID,
		AggregateType: AggregateTypeAccount,
		EventType:     eventType,
		Payload: map[string]any{
			"account_id":     acc.ID,
			"account_number": acc.AccountNumber,
			"name":           acc.Name,
			"type":           string(acc.Type),
			"currency":       acc.Currency,
			"status":         string(acc.Status),
		},
		CreatedAt: at,
	}
}
