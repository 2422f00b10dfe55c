package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/dto"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// PostingService defines the behavior needed by JournalHandler.
type PostingService interface {
	PostTransaction(ctx context.Context, input usecase.PostTransactionInput) (*usecase.PostingResult, error)
	PostJournalEntry(ctx context.Context, input usecase.PostJournalEntryInput) (*usecase.PostingResult, error)
	ReverseJournalEntry(ctx context.Context, input usecase.ReverseJournalEntryInput) (*usecase.PostingResult, error)
	GetJournalEntry(ctx context.Context, idOrReference string) (*domain.JournalEntry, error)
	ListJournalEntriesByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.JournalEntry, error)
}

// JournalHandler handles postings and journal entry lookups.
type JournalHandler struct {
	postingUC PostingService
	validator *dto.Validator
}

// NewJournalHandler creates a new JournalHandler.
func NewJournalHandler(postingUC PostingService, validator *dto.Validator) *JournalHandler {
	return &JournalHandler{postingUC: postingUC, validator: validator}
}

// PostTransaction posts a two-party transaction.
func (h *JournalHandler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	var req dto.PostTransactionRequest
	if err := decode(r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	input, err := req.ToUseCaseInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.postingUC.PostTransaction(r.Context(), input)
	writePosting(w, r, result, err)
}

// PostJournalEntry posts a balanced N-leg entry.
func (h *JournalHandler) PostJournalEntry(w http.ResponseWriter, r *http.Request) {
	var req dto.PostJournalEntryRequest
	if err := decode(r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	input, err := req.ToUseCaseInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.postingUC.PostJournalEntry(r.Context(), input)
	writePosting(w, r, result, err)
}

// Reverse posts the correcting entry for {ref}.
func (h *JournalHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req dto.ReverseJournalEntryRequest
	if err := decode(r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.postingUC.ReverseJournalEntry(r.Context(), req.ToUseCaseInput(chi.URLParam(r, "ref")))
	writePosting(w, r, result, err)
}

// Get retrieves a journal entry by ID or reference.
func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.postingUC.GetJournalEntry(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.JournalEntryFromDomain(entry))
}

// ListByAccount lists the journal entries touching account {id}, newest first.
func (h *JournalHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)

	entries, err := h.postingUC.ListJournalEntriesByAccount(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.JournalEntriesFromDomain(entries))
}

// writePosting answers 201 for a new entry and 200 for a replay.
func writePosting(w http.ResponseWriter, r *http.Request, result *usecase.PostingResult, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, dto.PostingFromResult(result))
}
