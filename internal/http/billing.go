package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/jmehdipour/data-moodboard/internal/http/middleware"
	"github.com/jmehdipour/data-moodboard/internal/service/billing"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// Stripe event payloads stay well below this.
const maxWebhookBody = 256 << 10

func checkoutHandler(svc *billing.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		url, err := svc.Checkout(c.Request().Context(), userID, middleware.EmailFromCtx(c))
		switch {
		case errors.Is(err, billing.ErrNotConfigured):
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "billing not configured"})
		case errors.Is(err, billing.ErrAlreadySubscribed):
			return c.JSON(http.StatusConflict, map[string]string{
				"error":       "already_subscribed",
				"description": "manage the subscription from the billing portal",
			})
		case err != nil:
			log.Errorf("checkout failed: %v", err)
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "payment provider error"})
		}
		return c.JSON(http.StatusOK, map[string]string{"url": url})
	}
}

func portalHandler(svc *billing.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		url, err := svc.Portal(c.Request().Context(), userID)
		switch {
		case errors.Is(err, billing.ErrNotConfigured):
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "billing not configured"})
		case errors.Is(err, billing.ErrNoCustomer):
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error":       "no_customer",
				"description": "subscribe first to manage billing",
			})
		case err != nil:
			log.Errorf("billing portal failed: %v", err)
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "payment provider error"})
		}
		return c.JSON(http.StatusOK, map[string]string{"url": url})
	}
}

// stripeWebhookHandler answers 5xx only when a retry can help; Stripe redelivers those.
func stripeWebhookHandler(svc *billing.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if len(payload) > maxWebhookBody {
			return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		}

		outcome, err := svc.HandleWebhook(c.Request().Context(), payload, c.Request().Header.Get("Stripe-Signature"))
		switch {
		case errors.Is(err, billing.ErrBadSignature):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		case errors.Is(err, billing.ErrNotConfigured):
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "billing not configured"})
		case err != nil:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "processing failed"})
		}
		return c.JSON(http.StatusOK, map[string]any{"received": true, "outcome": outcome})
	}
}
