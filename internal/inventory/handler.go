package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stockpilot/stockpilot/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes. Write routes go through the
// idempotency middleware supplied by the router.
func (h *Handler) MountRoutes(r chi.Router, idem func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if idem != nil {
			r.Use(idem)
		}
		r.Post("/inventory/inbound", h.handleInbound)
		r.Post("/inventory/transfer", h.handleTransfer)
	})
	r.Get("/stock", h.handleListStock)
	r.Get("/stock/ledger", h.handleLedger)
}

type inboundRequest struct {
	LocationID uuid.UUID       `json:"locationId" validate:"required"`
	ItemID     uuid.UUID       `json:"itemId" validate:"required"`
	Quantity   int64           `json:"quantity" validate:"required,gt=0"`
	OperatorID string          `json:"operatorId"`
	Metadata   json.RawMessage `json:"metadata"`
}

type transferRequest struct {
	FromLocationID uuid.UUID       `json:"fromLocationId" validate:"required"`
	ToLocationID   uuid.UUID       `json:"toLocationId" validate:"required"`
	ItemID         uuid.UUID       `json:"itemId" validate:"required"`
	Quantity       int64           `json:"quantity" validate:"required,gt=0"`
	OperatorID     string          `json:"operatorId"`
	Metadata       json.RawMessage `json:"metadata"`
}

type receiptResponse struct {
	OK                 bool      `json:"ok"`
	TransactionGroupID uuid.UUID `json:"transactionGroupId"`
}

func (h *Handler) handleInbound(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	receipt, err := h.service.Receive(r.Context(), ReceiveInput{
		LocationID: req.LocationID,
		ItemID:     req.ItemID,
		Quantity:   req.Quantity,
		OperatorID: req.OperatorID,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receiptResponse{OK: true, TransactionGroupID: receipt.TransactionGroupID})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	receipt, err := h.service.Transfer(r.Context(), TransferInput{
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		ItemID:         req.ItemID,
		Quantity:       req.Quantity,
		OperatorID:     req.OperatorID,
		Metadata:       req.Metadata,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receiptResponse{OK: true, TransactionGroupID: receipt.TransactionGroupID})
}

type balanceResponse struct {
	LocationID  uuid.UUID `json:"locationId"`
	ItemID      uuid.UUID `json:"itemId"`
	Quantity    int64     `json:"quantity"`
	LastUpdated string    `json:"lastUpdated"`
}

func (h *Handler) handleListStock(w http.ResponseWriter, r *http.Request) {
	var locationID uuid.UUID
	if raw := r.URL.Query().Get("locationId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "locationId must be a UUID")
			return
		}
		locationID = id
	}
	balances, err := h.service.ListBalances(r.Context(), locationID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]balanceResponse, 0, len(balances))
	for _, bal := range balances {
		out = append(out, balanceResponse{
			LocationID:  bal.LocationID,
			ItemID:      bal.ItemID,
			Quantity:    bal.Quantity,
			LastUpdated: bal.LastUpdated.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	filter := LedgerFilter{}
	q := r.URL.Query()
	if raw := q.Get("locationId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "locationId must be a UUID")
			return
		}
		filter.LocationID = id
	}
	if raw := q.Get("itemId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "itemId must be a UUID")
			return
		}
		filter.ItemID = id
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}
	entries, err := h.service.LedgerHistory(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrSameLocation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock",
			fmt.Sprintf("insufficient stock at source: available %d, requested %d", insufficient.Available, insufficient.Requested))
	default:
		h.logger.Error("inventory operation failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
