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

// BucketService defines the behavior needed by BucketHandler.
type BucketService interface {
	Move(ctx context.Context, kind domain.BucketOperationKind, input usecase.BucketMoveInput) (*usecase.BucketMoveResult, error)
	IsBalanceSufficient(ctx context.Context, accountID string, amount decimal.Decimal, bucket domain.Bucket) (bool, error)
}

// BucketHandler moves value between the available bucket and the holding buckets.
type BucketHandler struct {
	bucketUC  BucketService
	validator *dto.Validator
}

// NewBucketHandler creates a new BucketHandler.
func NewBucketHandler(bucketUC BucketService, validator *dto.Validator) *BucketHandler {
	return &BucketHandler{bucketUC: bucketUC, validator: validator}
}

// Move returns a handler performing the given bucket operation on {id}.
func (h *BucketHandler) Move(kind domain.BucketOperationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.BucketMoveRequest
		if err := decode(r, h.validator, &req); err != nil {
			writeError(w, r, err)
			return
		}

		input, err := req.ToUseCaseInput(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		result, err := h.bucketUC.Move(r.Context(), kind, input)
		if err != nil {
			writeError(w, r, err)
			return
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		writeJSON(w, status, dto.BucketMoveFromResult(result))
	}
}

// Sufficient reports whether ?amount= is covered by ?bucket= (available by default).
func (h *BucketHandler) Sufficient(w http.ResponseWriter, r *http.Request) {
	amount, err := domain.ParsePositiveAmount(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	bucket := domain.Bucket(r.URL.Query().Get("bucket"))
	id := chi.URLParam(r, "id")

	ok, err := h.bucketUC.IsBalanceSufficient(r.Context(), id, amount, bucket)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if bucket == "" {
		bucket = domain.BucketAvailable
	}

	writeJSON(w, http.StatusOK, dto.SufficiencyResponse{
		AccountID:  id,
		Bucket:     string(bucket),
		Amount:     amount.String(),
		Sufficient: ok,
	})
}
