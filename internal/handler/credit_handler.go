package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/crediario/credits-backend/internal/domain"
	"github.com/crediario/credits-backend/internal/service"
)

// CreditHandler handles credit-related HTTP requests
type CreditHandler struct {
	creditService *service.CreditService
}

// NewCreditHandler creates a new CreditHandler
func NewCreditHandler(creditService *service.CreditService) *CreditHandler {
	return &CreditHandler{creditService: creditService}
}

// AddCreditsRequest represents the add credits request body
type AddCreditsRequest struct {
	TenantID            string  `json:"tenantId"`
	TenantSlug          string  `json:"tenantSlug,omitempty"`
	Amount              int     `json:"amount"`
	OwnerID             string  `json:"ownerId,omitempty"`
	Kind                string  `json:"kind,omitempty"`
	Description         string  `json:"description,omitempty"`
	ContractedServiceID *string `json:"contractedServiceId,omitempty"`
}

// ConsumeCreditsRequest represents the consume credits request body
type ConsumeCreditsRequest struct {
	TenantID    string  `json:"tenantId"`
	TenantSlug  string  `json:"tenantSlug,omitempty"`
	Amount      int     `json:"amount"`
	OwnerID     string  `json:"ownerId,omitempty"`
	Description string  `json:"description,omitempty"`
	TargetType  string  `json:"targetType,omitempty"`
	TargetID    string  `json:"targetId,omitempty"`
	ConsumedAt  *string `json:"consumedAt,omitempty"` // YYYY-MM-DD
}

// RefundCreditsRequest represents the refund credits request body
type RefundCreditsRequest struct {
	TenantID   string `json:"tenantId"`
	TenantSlug string `json:"tenantSlug,omitempty"`
	OwnerID    string `json:"ownerId,omitempty"`
	TargetType string `json:"targetType"`
	TargetID   string `json:"targetId"`
}

// SweepRequest represents the expire/renew request body
type SweepRequest struct {
	TenantID   string `json:"tenantId"`
	TenantSlug string `json:"tenantSlug,omitempty"`
	OwnerID    string `json:"ownerId,omitempty"`
}

// OperationResponse represents the outcome of a mutating credits call
type OperationResponse struct {
	AccountID string `json:"accountId"`
	Balance   int    `json:"balance"`
}

// BalanceResponse represents a tenant's balance snapshot
type BalanceResponse struct {
	AccountID string `json:"accountId"`
	TenantID  string `json:"tenantId"`
	Balance   int    `json:"balance"`
	Expired   int    `json:"expired"`
}

// OperationLogResponse represents one logical operation in history views
type OperationLogResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	OwnerID     string `json:"ownerId"`
	Description string `json:"description"`
	Total       int    `json:"total"`
	TargetType  string `json:"targetType,omitempty"`
	TargetID    string `json:"targetId,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// AddCredits handles POST /api/v1/credits/add
func (h *CreditHandler) AddCredits(c echo.Context) error {
	var req AddCreditsRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		return NewValidationError(c, "Invalid tenant ID", []ValidationError{
			{Field: "tenantId", Message: "Must be a valid UUID"},
		})
	}

	if req.Amount <= 0 {
		return NewValidationError(c, "Invalid amount", []ValidationError{
			{Field: "amount", Message: "Must be a positive integer"},
		})
	}

	ownerID, err := parseOptionalUUID(req.OwnerID)
	if err != nil {
		return NewValidationError(c, "Invalid owner ID", []ValidationError{
			{Field: "ownerId", Message: "Must be a valid UUID"},
		})
	}

	var contractedServiceID *uuid.UUID
	if req.ContractedServiceID != nil && *req.ContractedServiceID != "" {
		id, err := uuid.Parse(*req.ContractedServiceID)
		if err != nil {
			return NewValidationError(c, "Invalid contracted service ID", []ValidationError{
				{Field: "contractedServiceId", Message: "Must be a valid UUID"},
			})
		}
		contractedServiceID = &id
	}

	result, err := h.creditService.AddCredits(c.Request().Context(), service.AddCreditsInput{
		CompanyID:           tenantID,
		CompanySlug:         req.TenantSlug,
		Amount:              req.Amount,
		OwnerID:             ownerID,
		Kind:                req.Kind,
		Description:         req.Description,
		ContractedServiceID: contractedServiceID,
	})
	if err != nil {
		return h.domainError(c, err, tenantID, "Failed to add credits")
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Int("amount", req.Amount).
		Int("balance", result.Balance).
		Msg("Credits added")

	return c.JSON(http.StatusCreated, toOperationResponse(result))
}

// ConsumeCredits handles POST /api/v1/credits/consume
func (h *CreditHandler) ConsumeCredits(c echo.Context) error {
	var req ConsumeCreditsRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		return NewValidationError(c, "Invalid tenant ID", []ValidationError{
			{Field: "tenantId", Message: "Must be a valid UUID"},
		})
	}

	if req.Amount <= 0 {
		return NewValidationError(c, "Invalid amount", []ValidationError{
			{Field: "amount", Message: "Must be a positive integer"},
		})
	}

	ownerID, err := parseOptionalUUID(req.OwnerID)
	if err != nil {
		return NewValidationError(c, "Invalid owner ID", []ValidationError{
			{Field: "ownerId", Message: "Must be a valid UUID"},
		})
	}

	var consumedAt *time.Time
	if req.ConsumedAt != nil && *req.ConsumedAt != "" {
		parsed, err := time.Parse("2006-01-02", *req.ConsumedAt)
		if err != nil {
			return NewValidationError(c, "Invalid consumed date", []ValidationError{
				{Field: "consumedAt", Message: "Must be in YYYY-MM-DD format"},
			})
		}
		consumedAt = &parsed
	}

	result, err := h.creditService.ConsumeCredits(c.Request().Context(), service.ConsumeCreditsInput{
		CompanyID:   tenantID,
		CompanySlug: req.TenantSlug,
		Amount:      req.Amount,
		OwnerID:     ownerID,
		Description: req.Description,
		TargetType:  req.TargetType,
		TargetID:    req.TargetID,
		ConsumedAt:  consumedAt,
	})
	if err != nil {
		return h.domainError(c, err, tenantID, "Failed to consume credits")
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Int("amount", req.Amount).
		Int("balance", result.Balance).
		Msg("Credits consumed")

	return c.JSON(http.StatusOK, toOperationResponse(result))
}

// RefundCredits handles POST /api/v1/credits/refund
func (h *CreditHandler) RefundCredits(c echo.Context) error {
	var req RefundCreditsRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		return NewValidationError(c, "Invalid tenant ID", []ValidationError{
			{Field: "tenantId", Message: "Must be a valid UUID"},
		})
	}

	if req.TargetType == "" || req.TargetID == "" {
		return NewValidationError(c, "Missing refund target", []ValidationError{
			{Field: "targetType", Message: "Target type and target id are required"},
		})
	}

	ownerID, err := parseOptionalUUID(req.OwnerID)
	if err != nil {
		return NewValidationError(c, "Invalid owner ID", []ValidationError{
			{Field: "ownerId", Message: "Must be a valid UUID"},
		})
	}

	result, err := h.creditService.RefundCredits(c.Request().Context(), service.RefundCreditsInput{
		CompanyID:   tenantID,
		CompanySlug: req.TenantSlug,
		OwnerID:     ownerID,
		TargetType:  req.TargetType,
		TargetID:    req.TargetID,
	})
	if err != nil {
		return h.domainError(c, err, tenantID, "Failed to refund credits")
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("target_type", req.TargetType).
		Str("target_id", req.TargetID).
		Int("balance", result.Balance).
		Msg("Credits refunded")

	return c.JSON(http.StatusOK, toOperationResponse(result))
}

// ExpireCredits handles POST /api/v1/credits/expire
func (h *CreditHandler) ExpireCredits(c echo.Context) error {
	req, tenantID, ownerID, err := h.bindSweepRequest(c)
	if err != nil {
		return err
	}

	result, err := h.creditService.ExpireCredits(c.Request().Context(), tenantID, req.TenantSlug, ownerID)
	if err != nil {
		return h.domainError(c, err, tenantID, "Failed to expire credits")
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Int("balance", result.Balance).
		Msg("Credits expired")

	return c.JSON(http.StatusOK, toOperationResponse(result))
}

// RenewCredits handles POST /api/v1/credits/renew
func (h *CreditHandler) RenewCredits(c echo.Context) error {
	req, tenantID, ownerID, err := h.bindSweepRequest(c)
	if err != nil {
		return err
	}

	result, err := h.creditService.RenewCredits(c.Request().Context(), tenantID, req.TenantSlug, ownerID)
	if err != nil {
		return h.domainError(c, err, tenantID, "Failed to renew credits")
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Int("balance", result.Balance).
		Msg("Credits renewed")

	return c.JSON(http.StatusOK, toOperationResponse(result))
}

// GetBalance handles GET /api/v1/credits/:tenantId/balance
func (h *CreditHandler) GetBalance(c echo.Context) error {
	tenantID, err := uuid.Parse(c.Param("tenantId"))
	if err != nil {
		return NewValidationError(c, "Invalid tenant ID", nil)
	}

	balance, err := h.creditService.GetBalance(c.Request().Context(), tenantID)
	if err != nil {
		return h.domainError(c, err, tenantID, "Failed to get balance")
	}

	return c.JSON(http.StatusOK, BalanceResponse{
		AccountID: balance.AccountID.String(),
		TenantID:  balance.CompanyID.String(),
		Balance:   balance.Balance,
		Expired:   balance.Expired,
	})
}

// GetHistory handles GET /api/v1/credits/:tenantId/history
func (h *CreditHandler) GetHistory(c echo.Context) error {
	tenantID, err := uuid.Parse(c.Param("tenantId"))
	if err != nil {
		return NewValidationError(c, "Invalid tenant ID", nil)
	}

	kind := c.QueryParam("kind")
	operations, err := h.creditService.GetHistory(c.Request().Context(), tenantID, kind)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return NewValidationError(c, "Invalid kind parameter", []ValidationError{
				{Field: "kind", Message: "Must be one of add, consume, expire, refund, renew"},
			})
		}
		return h.domainError(c, err, tenantID, "Failed to get history")
	}

	response := make([]OperationLogResponse, len(operations))
	for i, op := range operations {
		response[i] = toOperationLogResponse(op)
	}

	return c.JSON(http.StatusOK, response)
}

// bindSweepRequest binds and validates the shared expire/renew request shape.
func (h *CreditHandler) bindSweepRequest(c echo.Context) (SweepRequest, uuid.UUID, uuid.UUID, error) {
	var req SweepRequest
	if err := c.Bind(&req); err != nil {
		return req, uuid.Nil, uuid.Nil, NewValidationError(c, "Invalid request body", nil)
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		return req, uuid.Nil, uuid.Nil, NewValidationError(c, "Invalid tenant ID", []ValidationError{
			{Field: "tenantId", Message: "Must be a valid UUID"},
		})
	}

	ownerID, err := parseOptionalUUID(req.OwnerID)
	if err != nil {
		return req, uuid.Nil, uuid.Nil, NewValidationError(c, "Invalid owner ID", []ValidationError{
			{Field: "ownerId", Message: "Must be a valid UUID"},
		})
	}

	return req, tenantID, ownerID, nil
}

// domainError maps domain errors to problem responses.
func (h *CreditHandler) domainError(c echo.Context, err error, tenantID uuid.UUID, internalDetail string) error {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return NewNotFoundError(c, "Credit account not found")
	case errors.Is(err, domain.ErrInsufficientBalance):
		return NewConflictError(c, "Insufficient credit balance")
	case errors.Is(err, domain.ErrExpiredCredit):
		return NewConflictError(c, "Credit batch is expired")
	case errors.Is(err, domain.ErrInvalidInput):
		return NewValidationError(c, "Invalid input", nil)
	}
	log.Error().Err(err).Str("tenant_id", tenantID.String()).Msg(internalDetail)
	return NewInternalError(c, internalDetail)
}

func parseOptionalUUID(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(value)
}

func toOperationResponse(result *service.OperationResult) OperationResponse {
	return OperationResponse{
		AccountID: result.AccountID.String(),
		Balance:   result.Balance,
	}
}

func toOperationLogResponse(op *domain.Operation) OperationLogResponse {
	return OperationLogResponse{
		ID:          op.ID.String(),
		Kind:        string(op.Kind),
		OwnerID:     op.OwnerID.String(),
		Description: op.Description,
		Total:       op.Total(),
		TargetType:  op.TargetType,
		TargetID:    op.TargetID,
		CreatedAt:   op.CreatedAt.Format(time.RFC3339),
	}
}
