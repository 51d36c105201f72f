package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hearthside/cms/internal/domain"
	"github.com/hearthside/cms/internal/handler"
	"github.com/hearthside/cms/internal/middleware"
	"github.com/hearthside/cms/internal/service"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// BillingHandler exposes checkout and portal session creation.
type BillingHandler struct {
	checkout service.CheckoutService
	portal   service.PortalService
	logger   *slog.Logger
}

// NewBillingHandler creates a new billing API handler.
func NewBillingHandler(checkout service.CheckoutService, portal service.PortalService, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		checkout: checkout,
		portal:   portal,
		logger:   logger.With("handler", "billing_api"),
	}
}

type checkoutRequest struct {
	Tier string `json:"tier" validate:"required,oneof=basic pro enterprise"`
}

type sessionResponse struct {
	URL string `json:"url"`
}

// CreateCheckout handles POST /api/billing/checkout.
// Responds with the hosted checkout URL for the requested tier.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		handler.UnauthorizedResponse(w, r)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug("checkout request body rejected", "error", err)
		handler.ErrorResponse(w, r, domain.Invalid("billing.checkout", "invalid request body"))
		return
	}

	if err := validate.Struct(req); err != nil {
		handler.ValidationErrorResponse(w, r, toFieldErrors("billing.checkout", err))
		return
	}

	url, err := h.checkout.CreateCheckout(r.Context(), user, req.Tier)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{URL: url})
}

// CreatePortal handles POST /api/billing/portal.
// Responds with a billing portal URL for the user's existing customer.
func (h *BillingHandler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		handler.UnauthorizedResponse(w, r)
		return
	}

	url, err := h.portal.CreatePortalSession(r.Context(), user)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{URL: url})
}

// toFieldErrors converts validator errors into domain field errors.
func toFieldErrors(op string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Invalid(op, "validation failed")
	}

	var out error
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		var msg string
		switch fe.Tag() {
		case "required":
			msg = field + " is required"
		case "oneof":
			msg = field + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
		default:
			msg = field + " is invalid"
		}
		if out == nil {
			out = domain.NewValidationError(op, field, msg)
		} else {
			out = domain.AddFieldError(out, field, msg)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
