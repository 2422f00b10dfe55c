package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/dto"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// AccountService defines the behavior needed by AccountHandler.
type AccountService interface {
	CreateAccount(ctx context.Context, input usecase.CreateAccountInput) (*domain.Account, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error)
	ListAccounts(ctx context.Context, filter domain.AccountFilter) ([]*domain.Account, error)
	GetBalance(ctx context.Context, accountID string, bucket domain.Bucket) (decimal.Decimal, error)
	GetBalances(ctx context.Context, accountID string) (domain.Balances, error)
	SetAccountParent(ctx context.Context, input usecase.SetParentInput) (*domain.Account, error)
	CloseAccount(ctx context.Context, input usecase.AccountActionInput) (*domain.Account, error)
	DeactivateAccount(ctx context.Context, input usecase.AccountActionInput) (*domain.Account, error)
	ActivateAccount(ctx context.Context, input usecase.AccountActionInput) (*domain.Account, error)
}

// AccountHandler handles account-related HTTP requests.
type AccountHandler struct {
	accountUC AccountService
	validator *dto.Validator
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountUC AccountService, validator *dto.Validator) *AccountHandler {
	return &AccountHandler{accountUC: accountUC, validator: validator}
}

// Create opens a new account.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAccountRequest
	if err := decode(r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	input, err := req.ToUseCaseInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	account, err := h.accountUC.CreateAccount(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.AccountFromDomain(account))
}

// Get retrieves an account by ID.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountUC.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}

// GetByNumber retrieves an account by its account number.
func (h *AccountHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountUC.GetAccountByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}

// List lists accounts, optionally filtered by user, currency, type, status or parent.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	q := r.URL.Query()

	accounts, err := h.accountUC.ListAccounts(r.Context(), domain.AccountFilter{
		UserID:   q.Get("userId"),
		Currency: q.Get("currency"),
		Type:     domain.AccountType(q.Get("type")),
		Status:   domain.AccountStatus(q.Get("status")),
		ParentID: q.Get("parentId"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListAccountsResponse{
		Accounts: dto.AccountsFromDomain(accounts),
		Limit:    limit,
		Offset:   offset,
	})
}

// Balances returns all six buckets, or a single one when ?bucket= is set.
func (h *AccountHandler) Balances(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if bucket := r.URL.Query().Get("bucket"); bucket != "" {
		value, err := h.accountUC.GetBalance(r.Context(), id, domain.Bucket(bucket))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"accountId": id,
			"bucket":    bucket,
			"balance":   value.String(),
		})
		return
	}

	balances, err := h.accountUC.GetBalances(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalancesFromDomain(balances))
}

// SetParent attaches the account to a parent, or detaches it when parentId is omitted.
func (h *AccountHandler) SetParent(w http.ResponseWriter, r *http.Request) {
	var req dto.SetParentRequest
	if err := decode(r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	account, err := h.accountUC.SetAccountParent(r.Context(), usecase.SetParentInput{
		AccountID: chi.URLParam(r, "id"),
		ParentID:  req.ParentID,
		Reason:    req.Reason,
		Actor:     req.Actor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}

// Close closes an account with no remaining balance.
func (h *AccountHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.accountUC.CloseAccount)
}

// Deactivate blocks postings on an account.
func (h *AccountHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.accountUC.DeactivateAccount)
}

// Activate re-enables a deactivated account.
func (h *AccountHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.accountUC.ActivateAccount)
}

type lifecycleFunc func(ctx context.Context, input usecase.AccountActionInput) (*domain.Account, error)

func (h *AccountHandler) lifecycle(w http.ResponseWriter, r *http.Request, fn lifecycleFunc) {
	var req dto.AccountActionRequest
	if err := decode(r, h.validator, &req); err != nil {
		writeError(w, r, err)
		return
	}

	account, err := fn(r.Context(), req.ToUseCaseInput(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}
