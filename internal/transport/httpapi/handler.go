// Package httpapi exposes the queue, catalog, connectivity and sync status to
// the browser UI over a local HTTP bridge.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bft-labs/possync/internal/domain"
	"github.com/bft-labs/possync/internal/ports"
)

// Service is what the bridge needs from the running sync service.
type Service interface {
	Enqueue(ctx context.Context, payload json.RawMessage) (string, error)
	EnqueueWithID(ctx context.Context, id string, payload json.RawMessage) (string, error)
	Get(ctx context.Context, id string) (domain.Transaction, error)
	Pending(ctx context.Context) ([]domain.Transaction, error)

	Products(ctx context.Context) ([]domain.Product, error)
	ReplaceProducts(ctx context.Context, products []domain.Product) error
	Cart(ctx context.Context) ([]domain.CartItem, error)
	ReplaceCart(ctx context.Context, items []domain.CartItem) error
	ClearCart(ctx context.Context) error

	SyncStatus(ctx context.Context) (domain.Status, error)
	SubscribeStatus() (<-chan domain.Status, func())
	SetOnline(online bool) bool
	SyncNow() error
}

// handler holds the service and implements the bridge endpoints.
type handler struct {
	svc    Service
	logger ports.Logger
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createTransaction stores the request body as a sale payload. A client that
// retries should send the same Idempotency-Key to avoid a second record.
func (h *handler) createTransaction(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}

	id, err := h.svc.EnqueueWithID(c.Request.Context(), c.GetHeader("Idempotency-Key"), body)
	if err != nil {
		h.fail(c, "enqueue failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *handler) pending(c *gin.Context) {
	txs, err := h.svc.Pending(c.Request.Context())
	if err != nil {
		h.fail(c, "list pending failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": txs, "count": len(txs)})
}

func (h *handler) getTransaction(c *gin.Context) {
	tx, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get transaction failed", err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *handler) status(c *gin.Context) {
	st, err := h.svc.SyncStatus(c.Request.Context())
	if err != nil {
		h.fail(c, "status failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// statusStream sends one "status" server-sent event per change until the
// client goes away.
func (h *handler) statusStream(c *gin.Context) {
	updates, cancel := h.svc.SubscribeStatus()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	if st, err := h.svc.SyncStatus(c.Request.Context()); err == nil {
		c.SSEvent("status", st)
		c.Writer.Flush()
	}

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case st, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("status", st)
			return true
		}
	})
}

func (h *handler) setConnectivity(c *gin.Context) {
	var req struct {
		Online *bool `json:"online" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"online\": bool}"})
		return
	}

	changed := h.svc.SetOnline(*req.Online)
	c.JSON(http.StatusOK, gin.H{"online": *req.Online, "changed": changed})
}

func (h *handler) syncNow(c *gin.Context) {
	if err := h.svc.SyncNow(); err != nil {
		h.fail(c, "sync not started", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (h *handler) getProducts(c *gin.Context) {
	products, err := h.svc.Products(c.Request.Context())
	if err != nil {
		h.fail(c, "list products failed", err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *handler) putProducts(c *gin.Context) {
	var products []domain.Product
	if err := c.ShouldBindJSON(&products); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product list"})
		return
	}
	if err := h.svc.ReplaceProducts(c.Request.Context(), products); err != nil {
		h.fail(c, "replace products failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(products)})
}

func (h *handler) getCart(c *gin.Context) {
	items, err := h.svc.Cart(c.Request.Context())
	if err != nil {
		h.fail(c, "get cart failed", err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *handler) putCart(c *gin.Context) {
	var items []domain.CartItem
	if err := c.ShouldBindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cart"})
		return
	}
	if err := h.svc.ReplaceCart(c.Request.Context(), items); err != nil {
		h.fail(c, "replace cart failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(items)})
}

func (h *handler) deleteCart(c *gin.Context) {
	if err := h.svc.ClearCart(c.Request.Context()); err != nil {
		h.fail(c, "clear cart failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps domain errors to status codes.
func (h *handler) fail(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateKey),
		errors.Is(err, domain.ErrOffline),
		errors.Is(err, domain.ErrPassInProgress):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrStorageUnavailable),
		errors.Is(err, domain.ErrNotRunning):
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		h.logger.Error(msg, ports.Err(err), ports.String("path", c.FullPath()))
	} else {
		h.logger.Debug(msg, ports.Err(err), ports.Int("status", status))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
