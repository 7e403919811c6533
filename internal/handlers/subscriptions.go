package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kosarica/deal-service/internal/types"
	"github.com/kosarica/deal-service/internal/validation"
)

// SubscribeResponse is returned by a successful subscribe call
type SubscribeResponse struct {
	Message         string   `json:"message"`
	SubscriptionKey []string `json:"subscription_key"`
	Created         bool     `json:"created"`
}

// SubscriptionView is one subscription without its per-item price state
type SubscriptionView struct {
	ProductName             string        `json:"productName"`
	UserIdentifier          string        `json:"userIdentifier"`
	Channel                 types.Channel `json:"channel"`
	DesiredDiscountFraction float64       `json:"desiredDiscountFraction"`
	TrackedItems            int           `json:"trackedItems"`
	NotifiedItems           int           `json:"notifiedItems"`
	CreatedAt               time.Time     `json:"createdAt"`
	UpdatedAt               time.Time     `json:"updatedAt"`
}

// ValidatePhoneRequest is the body of a phone check
type ValidatePhoneRequest struct {
	Phone string `json:"phone"`
}

// Subscribe creates or updates a price-drop subscription
// POST /subscriptions
func (a *API) Subscribe(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return
	}

	req, err := validation.DecodeSubscribe(body)
	if err != nil {
		if validation.IsFieldError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	res, err := a.engine.Subscribe(c.Request.Context(), req)
	if err != nil {
		var fe *validation.FieldError
		if errors.As(err, &fe) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fe.Error()})
			return
		}
		a.logger.Error().Err(err).Msg("Failed to save subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save subscription"})
		return
	}

	c.JSON(http.StatusOK, SubscribeResponse{
		Message:         res.Message,
		SubscriptionKey: res.Key.Parts(),
		Created:         res.Created,
	})
}

// ListSubscriptions returns every subscription
// GET /internal/subscriptions
func (a *API) ListSubscriptions(c *gin.Context) {
	subs, err := a.engine.List(c.Request.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list subscriptions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}

	views := make([]SubscriptionView, 0, len(subs))
	for _, s := range subs {
		views = append(views, SubscriptionView{
			ProductName:             s.ProductName,
			UserIdentifier:          s.UserIdentifier,
			Channel:                 s.Channel,
			DesiredDiscountFraction: s.DesiredDiscountFraction,
			TrackedItems:            len(s.LastKnownPrices),
			NotifiedItems:           len(s.NotifiedForPrice),
			CreatedAt:               s.CreatedAt,
			UpdatedAt:               s.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": views, "count": len(views)})
}

// ValidatePhone reports whether a WhatsApp number is acceptable
// POST /validate-phone
func (a *API) ValidatePhone(c *gin.Context) {
	var req ValidatePhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	c.JSON(http.StatusOK, validation.ValidatePhone(req.Phone))
}
