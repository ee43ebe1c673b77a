package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"starshop/internal/models"
	"starshop/internal/service"
	"starshop/internal/session"
	"starshop/internal/util"
)

// Orders is the order service surface the API needs.
type Orders interface {
	PlaceOrder(ctx context.Context, req *service.PlaceOrderRequest) (*service.PlaceOrderResult, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListRecent(ctx context.Context, limit int) ([]models.Order, error)
}

// Gateway is the payment gateway surface the API needs.
type Gateway interface {
	HandleWebhook(ctx context.Context, claimedSecret string, payload *service.WebhookPayload) error
	CheckPayment(ctx context.Context, orderID string) (string, error)
}

// Flows drives the multi-step chat conversations.
type Flows interface {
	Reset(ctx context.Context, userID int64) error
	StartGift(ctx context.Context, userID int64) (*session.Reply, error)
	StartCustom(ctx context.Context, userID int64) (*session.Reply, error)
	HandleText(ctx context.Context, userID int64, text string) (*session.Reply, error)
}

// Handler contains HTTP handlers
type Handler struct {
	orders     Orders
	gateway    Gateway
	flows      Flows
	adminToken string
	commands   map[string]func(*gin.Context, *ChatCommand)
}

// NewHandler creates a new HTTP handler
func NewHandler(orders Orders, gateway Gateway, flows Flows, adminToken string) *Handler {
	h := &Handler{
		orders:     orders,
		gateway:    gateway,
		flows:      flows,
		adminToken: adminToken,
	}
	h.commands = map[string]func(*gin.Context, *ChatCommand){
		"start":         h.cmdStart,
		"buy":           h.cmdBuy,
		"buy_custom":    h.cmdBuyCustom,
		"gift":          h.cmdGift,
		"text":          h.cmdText,
		"check_payment": h.cmdCheckPayment,
	}
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/webhooks/payment", h.paymentWebhook)
		v1.POST("/chat/commands", h.chatCommand)

		admin := v1.Group("", h.requireAdmin)
		{
			admin.GET("/orders", h.listOrders)
			admin.GET("/orders/:id", h.getOrder)
		}
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Unix()})
}

// paymentWebhook receives payment confirmations from the provider. Processed
// payloads are acknowledged with 200 even for unknown orders, so the
// provider does not retry-storm us.
func (h *Handler) paymentWebhook(c *gin.Context) {
	var payload service.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	err := h.gateway.HandleWebhook(c.Request.Context(), c.GetHeader("X-Webhook-Secret"), &payload)
	switch {
	case err == nil, errors.Is(err, models.ErrOrderNotFound):
		c.JSON(http.StatusOK, gin.H{"ok": true})
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, models.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing order reference"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
	}
}

// ChatCommand is one user action relayed by the chat adapter.
type ChatCommand struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Handle   string `json:"handle"`
	Command  string `json:"command" binding:"required"`
	Text     string `json:"text,omitempty"`
	Quantity int64  `json:"quantity,omitempty"`
	OrderID  string `json:"order_id,omitempty"`
}

// ChatReply is what the adapter should render back to the user.
type ChatReply struct {
	Reply  string        `json:"reply,omitempty"`
	Order  *models.Order `json:"order,omitempty"`
	PayURL string        `json:"pay_url,omitempty"`
	Status string        `json:"status,omitempty"`
}

func (h *Handler) chatCommand(c *gin.Context) {
	var cmd ChatCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	handler, ok := h.commands[cmd.Command]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown command"})
		return
	}
	handler(c, &cmd)
}

func (h *Handler) cmdStart(c *gin.Context, cmd *ChatCommand) {
	if err := h.flows.Reset(c.Request.Context(), cmd.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session reset failed"})
		return
	}
	c.JSON(http.StatusOK, ChatReply{Reply: "Welcome! Pick an amount of stars or start a gift."})
}

func (h *Handler) cmdBuy(c *gin.Context, cmd *ChatCommand) {
	h.placeOrder(c, cmd, cmd.Quantity, "")
}

func (h *Handler) cmdBuyCustom(c *gin.Context, cmd *ChatCommand) {
	reply, err := h.flows.StartCustom(c.Request.Context(), cmd.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session failed"})
		return
	}
	c.JSON(http.StatusOK, ChatReply{Reply: reply.Prompt})
}

func (h *Handler) cmdGift(c *gin.Context, cmd *ChatCommand) {
	reply, err := h.flows.StartGift(c.Request.Context(), cmd.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session failed"})
		return
	}
	c.JSON(http.StatusOK, ChatReply{Reply: reply.Prompt})
}

func (h *Handler) cmdText(c *gin.Context, cmd *ChatCommand) {
	reply, err := h.flows.HandleText(c.Request.Context(), cmd.UserID, cmd.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session failed"})
		return
	}
	if reply.Purchase == nil {
		c.JSON(http.StatusOK, ChatReply{Reply: reply.Prompt})
		return
	}
	h.placeOrder(c, cmd, reply.Purchase.Quantity, reply.Purchase.GiftRecipient)
}

func (h *Handler) cmdCheckPayment(c *gin.Context, cmd *ChatCommand) {
	if cmd.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id required"})
		return
	}
	status, err := h.gateway.CheckPayment(c.Request.Context(), cmd.OrderID)
	if errors.Is(err, models.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	if err != nil {
		// provider trouble: report last known status
		c.JSON(http.StatusOK, ChatReply{Status: status, Reply: "Could not reach the payment provider, try again later."})
		return
	}
	reply := "Payment not received yet."
	if status == models.OrderStatusPaid || status == models.OrderStatusDelivering ||
		status == models.OrderStatusDelivered {
		reply = "Payment received."
	}
	c.JSON(http.StatusOK, ChatReply{Status: status, Reply: reply})
}

func (h *Handler) placeOrder(c *gin.Context, cmd *ChatCommand, quantity int64, giftRecipient string) {
	res, err := h.orders.PlaceOrder(c.Request.Context(), &service.PlaceOrderRequest{
		BuyerID:       cmd.UserID,
		BuyerHandle:   cmd.Handle,
		Quantity:      quantity,
		GiftRecipient: giftRecipient,
	})
	if errors.Is(err, models.ErrInvalidQuantity) {
		c.JSON(http.StatusOK, ChatReply{Reply: "That quantity is out of range."})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order placement failed"})
		return
	}

	out := ChatReply{
		Reply: fmt.Sprintf("Order placed: %d stars for %s.", res.Order.Quantity, res.Order.Recipient()),
		Order: res.Order,
	}
	if res.Invoice != nil {
		out.PayURL = res.Invoice.PayURL
	} else {
		out.Reply += " Payment link is temporarily unavailable, use /check later or contact support."
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) requireAdmin(c *gin.Context) {
	if h.adminToken == "" || c.GetHeader("X-Admin-Token") != h.adminToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (h *Handler) listOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	orders, err := h.orders.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if errors.Is(err, models.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
