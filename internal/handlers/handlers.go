// Package handlers exposes sessions, carts, checkout and read models over HTTP.
package handlers

import (
	"context"
	"errors"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/ashendes/checkout-engine/internal/checkout"
	"github.com/ashendes/checkout-engine/internal/inventory"
	"github.com/ashendes/checkout-engine/internal/models"
	"github.com/ashendes/checkout-engine/internal/patterns"
	"github.com/ashendes/checkout-engine/internal/session"
	"github.com/ashendes/checkout-engine/internal/store"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Handler serves the checkout API.
type Handler struct {
	orch     *checkout.Orchestrator
	sessions session.Store
	reader   store.Reader
	logger   log.FieldLogger

	// locks serializes requests that mutate the same session. Sessions are
	// striped over a fixed set so the table does not grow with session count.
	locks [sessionLockStripes]sync.Mutex
}

const sessionLockStripes = 256

func New(orch *checkout.Orchestrator, sessions session.Store, reader store.Reader, logger log.FieldLogger) *Handler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Handler{
		orch:     orch,
		sessions: sessions,
		reader:   reader,
		logger:   logger,
	}
}

// Register mounts all routes on r.
func (h *Handler) Register(r gin.IRouter) {
	// Health check endpoints
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/ready", h.ready)

	// Session endpoints
	r.GET("/sessions/:sessionId", h.getSession)
	r.PUT("/sessions/:sessionId/customer", h.putCustomer)
	r.PUT("/sessions/:sessionId/order-info", h.putOrderInfo)
	r.POST("/sessions/:sessionId/cart/items", h.addCartItem)
	r.DELETE("/sessions/:sessionId/cart", h.clearCart)
	r.POST("/sessions/:sessionId/checkout", h.checkout)

	// Read endpoints
	r.GET("/inventory", h.listInventory)
	r.GET("/inventory/:inventoryId", h.getInventory)
	r.GET("/inventory/:inventoryId/back-order", h.getBackOrder)
	r.GET("/orders/:orderId", h.getOrder)
}

func (h *Handler) lock(sessionID string) func() {
	mu := h.sessionLock(sessionID)
	mu.Lock()
	return mu.Unlock
}

func (h *Handler) sessionLock(sessionID string) *sync.Mutex {
	f := fnv.New32a()
	_, _ = f.Write([]byte(sessionID))
	return &h.locks[f.Sum32()%sessionLockStripes]
}

func (h *Handler) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"store": "ok", "sessions": "ok"}
	status := http.StatusOK
	if err := h.reader.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.sessions.Ping(ctx); err != nil {
		checks["sessions"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": status == http.StatusOK, "checks": checks})
}

func (h *Handler) getSession(c *gin.Context) {
	id := c.Param("sessionId")
	ctx := c.Request.Context()

	st, err := h.sessions.Load(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	items, err := h.sessions.Cart(id).Items(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SessionResponse{
		SessionID:   id,
		Customer:    st.Customer,
		OrderInfo:   maskedOrderInfo(st.OrderInfo),
		LastOrderID: st.LastOrderID,
		Cart:        items,
	})
}

func (h *Handler) putCustomer(c *gin.Context) {
	var req models.Customer
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	h.updateSession(c, func(st *session.State) { st.Customer = &req })
}

func (h *Handler) putOrderInfo(c *gin.Context) {
	var req models.OrderInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	h.updateSession(c, func(st *session.State) { st.OrderInfo = &req })
}

func (h *Handler) updateSession(c *gin.Context, mutate func(st *session.State)) {
	id := c.Param("sessionId")
	ctx := c.Request.Context()
	defer h.lock(id)()

	st, err := h.sessions.Load(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	mutate(&st)
	if err := h.sessions.Save(ctx, id, st); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req models.CartLineItem
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	id := c.Param("sessionId")
	ctx := c.Request.Context()
	defer h.lock(id)()

	if _, err := h.reader.Inventory(ctx, req.InventoryID); err != nil {
		h.respondError(c, err)
		return
	}

	cart := h.sessions.Cart(id)
	if err := cart.AddItem(ctx, req); err != nil {
		h.respondError(c, err)
		return
	}
	items, err := cart.Items(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.AddCartItemResponse{SessionID: id, Items: items})
}

func (h *Handler) clearCart(c *gin.Context) {
	id := c.Param("sessionId")
	defer h.lock(id)()

	if err := h.sessions.Cart(id).RemoveAllItems(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) checkout(c *gin.Context) {
	id := c.Param("sessionId")
	ctx := c.Request.Context()
	defer h.lock(id)()

	st, err := h.sessions.Load(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	cs := st.CheckoutSession(id, h.sessions.Cart(id))
	result, err := h.orch.CompleteCheckout(ctx, cs)
	if result == nil {
		h.respondError(c, err)
		return
	}

	resp := checkoutResponse(result)
	if err != nil {
		resp.Warning = err.Error()
	}
	// The order is committed, so the session is saved even if the client has gone.
	saveCtx, cancel := patterns.WithTimeout(context.WithoutCancel(ctx), patterns.DefaultTimeout)
	defer cancel()
	if saveErr := h.sessions.Save(saveCtx, id, session.FromCheckout(cs)); saveErr != nil {
		h.logger.WithFields(log.Fields{
			"session_id": id,
			"order_id":   result.OrderID,
		}).WithError(saveErr).Error("Failed to save session after checkout")
		resp.Warning = "session not saved: " + saveErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listInventory(c *gin.Context) {
	items, err := h.reader.ListInventory(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) getInventory(c *gin.Context) {
	inv, err := h.reader.Inventory(c.Request.Context(), c.Param("inventoryId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *Handler) getBackOrder(c *gin.Context) {
	bo, err := h.reader.BackOrder(c.Request.Context(), c.Param("inventoryId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bo)
}

func (h *Handler) getOrder(c *gin.Context) {
	o, err := h.reader.Order(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// respondError maps domain errors onto status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, checkout.ErrMissingCustomer),
		errors.Is(err, checkout.ErrMissingOrderInfo),
		errors.Is(err, checkout.ErrMissingCart),
		errors.Is(err, inventory.ErrInvalidItem):
		status = http.StatusBadRequest
	case errors.Is(err, inventory.ErrInventoryNotFound),
		errors.Is(err, store.ErrBackOrderNotFound),
		errors.Is(err, store.ErrOrderNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.logger.WithFields(log.Fields{
			"path":  c.FullPath(),
			"error": err.Error(),
		}).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func checkoutResponse(r *checkout.Result) models.CheckoutResponse {
	resp := models.CheckoutResponse{
		Outcome:         r.Outcome,
		OrderID:         r.OrderID,
		Notification:    models.NotificationView{Status: string(r.Notification.Status)},
		Reconciliations: make([]models.ReconciliationView, 0, len(r.Reconciliations)),
	}
	if r.Notification.Err != nil {
		resp.Notification.Error = r.Notification.Err.Error()
	}
	for _, rec := range r.Reconciliations {
		view := models.ReconciliationView{
			InventoryID: rec.InventoryID,
			Ordered:     rec.Ordered,
			NewQuantity: rec.NewQuantity,
			Unfilled:    rec.Unfilled,
			Result:      rec.Result(),
		}
		if rec.BackOrder != nil {
			view.BackOrderID = rec.BackOrder.ID
			view.BackOrderQuantity = rec.BackOrder.Quantity
		}
		resp.Reconciliations = append(resp.Reconciliations, view)
	}
	return resp
}

func maskedOrderInfo(info *models.OrderInfo) *models.OrderInfo {
	if info == nil {
		return nil
	}
	masked := *info
	masked.Payment = info.Payment.Masked()
	return &masked
}
