package domain

import (
	"fmt"
	"sort"
	"time"
)

// ApplyJournalEntry mutates the loaded accounts leg by leg in canonical order
// (ascending account ID, then leg position). A debit subtracts from the leg bucket
// and a credit adds to it.
//
// If any leg fails, every leg already applied is compensated in reverse order and
// the accounts end up exactly as they were before the call.
func ApplyJournalEntry(entry *JournalEntry, accounts map[string]*Account, at time.Time) ([]*BalanceHistoryEntry, error) {
	order := make([]int, len(entry.Legs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return entry.Legs[order[i]].AccountID < entry.Legs[order[j]].AccountID
	})

	var transactionID string
	if entry.Kind == EntryKindTransaction {
		transactionID = entry.ID
	}

	type applied struct {
		account *Account
		record  *BalanceHistoryEntry
	}
	done := make([]applied, 0, len(entry.Legs))
	compensate := func() {
		for i := len(done) - 1; i >= 0; i-- {
			done[i].account.undo(done[i].record)
		}
	}

	for _, idx := range order {
		leg := entry.Legs[idx]
		acc, ok := accounts[leg.AccountID]
		if !ok {
			compensate()
			return nil, fmt.Errorf("leg %d: %w: %s", idx, ErrAccountNotFound, leg.AccountID)
		}
		if acc.Currency != entry.Currency {
			compensate()
			return nil, fmt.Errorf("leg %d: %w: account %s holds %s", idx, ErrCurrencyMismatch, acc.ID, acc.Currency)
		}

		reason := leg.Description
		if reason == "" {
			reason = entry.Description
		}
		op := OperationAdd
		if leg.IsDebit() {
			op = OperationSubtract
		}
		ch := BalanceChange{
			Amount:         leg.Amount(),
			Bucket:         leg.bucket(),
			Operation:      op,
			TransactionID:  transactionID,
			JournalEntryID: entry.ID,
			Reference:      entry.Reference,
			Reason:         reason,
			Actor:          entry.Actor,
			At:             at,
		}

		buckets := []Bucket{ch.Bucket}
		if entry.MirrorAvailable && ch.Bucket == BucketCurrent {
			buckets = append(buckets, BucketAvailable)
		}
		for _, b := range buckets {
			ch.Bucket = b
			record, err := acc.UpdateBalance(ch)
			if err != nil {
				compensate()
				return nil, fmt.Errorf("leg %d: %w", idx, err)
			}
			done = append(done, applied{account: acc, record: record})
		}
	}

	records := make([]*BalanceHistoryEntry, len(done))
	for i, d := range done {
		records[i] = d.record
	}
	return records, nil
}
