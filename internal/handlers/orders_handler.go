package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/pizza-tracker/internal/idempotency"
	"github.com/imrishuroy/pizza-tracker/internal/orders"
	"github.com/imrishuroy/pizza-tracker/internal/validation"
)

// IdempotencyHeader lets clients retry POST /orders safely.
const IdempotencyHeader = "Idempotency-Key"

const jsonContentType = "application/json; charset=utf-8"

// OrderReader is the cached read path. *reads.Service implements it.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID, caller string) ([]byte, error)
	ListActive(ctx context.Context) ([]byte, error)
	ListByCreator(ctx context.Context, creator string) ([]byte, error)
}

// OrderWriter is the write path. *orders.Service implements it.
type OrderWriter interface {
	Create(ctx context.Context, creator string, items []orders.Pizza) (string, error)
	ReplaceItems(ctx context.Context, orderID, caller string, items []orders.Pizza) error
	Submit(ctx context.Context, orderID, caller, rawStatus string) error
	Transition(ctx context.Context, orderID, rawStatus string) error
}

// IdempotencyStore records POST /orders outcomes. *idempotency.Store implements it.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (*idempotency.Record, bool, error)
	Complete(ctx context.Context, key, orderID, responseBody string, responseStatus int) error
	Fail(ctx context.Context, key, note string) error
}

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Reads  OrderReader
	Writes OrderWriter
	// Idempotency is optional; nil ignores the Idempotency-Key header.
	Idempotency IdempotencyStore
	// RestrictToCreator selects the customer deployment: callers see and
	// change only their own orders. Otherwise the operator view is served.
	RestrictToCreator bool
	Logger            *zap.Logger
}

type ordersHandler struct {
	cfg      HandlerConfig
	validate *validatorv10.Validate
	log      *zap.Logger
}

// failure messages per route
type messages struct {
	notFound  string
	forbidden string
	conflict  string
}

const genericFailure = "Something went wrong"

// RegisterOrdersRoutes registers routes for order API.
func RegisterOrdersRoutes(r gin.IRouter, cfg HandlerConfig) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &ordersHandler{cfg: cfg, validate: validation.New(), log: log}

	r.GET("/orders", h.listOrders)
	r.GET("/orders/:orderId", h.getOrder)
	r.POST("/orders", h.createOrder)
	r.PUT("/orders/:orderId", h.replaceItems)
	r.POST("/orders/:orderId/statuses", h.changeStatus)
}

func (h *ordersHandler) listOrders(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		body []byte
		err  error
	)
	if h.cfg.RestrictToCreator {
		body, err = h.cfg.Reads.ListByCreator(ctx, callerIdentity(c))
	} else {
		body, err = h.cfg.Reads.ListActive(ctx)
	}
	if err != nil {
		h.fail(c, "list orders", err, messages{})
		return
	}
	c.Data(http.StatusOK, jsonContentType, body)
}

func (h *ordersHandler) getOrder(c *gin.Context) {
	orderID := c.Param("orderId")
	body, err := h.cfg.Reads.GetOrder(c.Request.Context(), orderID, callerIdentity(c))
	if err != nil {
		h.fail(c, "get order", err, messages{
			notFound:  "An order with the provided id could not be found.",
			forbidden: "You are not allowed to view the requested order.",
		})
		return
	}
	c.Data(http.StatusOK, jsonContentType, body)
}

func (h *ordersHandler) createOrder(c *gin.Context) {
	var req validation.ItemsRequest
	// an order may start empty
	if err := validation.BindOptionalAndValidate(c, &req, h.validate); err != nil {
		return
	}
	caller := callerIdentity(c)

	key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
	if key == "" || h.cfg.Idempotency == nil {
		orderID, err := h.cfg.Writes.Create(c.Request.Context(), caller, req.Pizzas())
		if err != nil {
			h.fail(c, "create order", err, messages{})
			return
		}
		c.Header("Location", "/orders/"+orderID)
		c.JSON(http.StatusCreated, gin.H{"id": orderID})
		return
	}

	h.createIdempotent(c, idempotency.Key(caller, key), caller, req.Pizzas())
}

// createIdempotent creates at most one order per key and replays the first
// response to retries.
func (h *ordersHandler) createIdempotent(c *gin.Context, key, caller string, items []orders.Pizza) {
	ctx := c.Request.Context()

	rec, claimed, err := h.cfg.Idempotency.Claim(ctx, key)
	if err != nil {
		h.fail(c, "claim idempotency key", err, messages{})
		return
	}
	if !claimed {
		if rec.Status == idempotency.StatusDone && rec.ResponseBody != "" {
			status := rec.ResponseStatus
			if status == 0 {
				status = http.StatusCreated
			}
			if rec.OrderID != "" {
				c.Header("Location", "/orders/"+rec.OrderID)
			}
			c.Data(status, jsonContentType, []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "A request with this idempotency key is already in progress."})
		return
	}

	orderID, err := h.cfg.Writes.Create(ctx, caller, items)
	if err != nil {
		if ferr := h.cfg.Idempotency.Fail(ctx, key, err.Error()); ferr != nil {
			h.log.Warn("release idempotency key", zap.String("key", key), zap.Error(ferr))
		}
		h.fail(c, "create order", err, messages{})
		return
	}

	body, err := json.Marshal(gin.H{"id": orderID})
	if err != nil {
		h.fail(c, "encode response", err, messages{})
		return
	}
	if err := h.cfg.Idempotency.Complete(ctx, key, orderID, string(body), http.StatusCreated); err != nil {
		h.log.Warn("store idempotent response", zap.String("key", key), zap.String("order_id", orderID), zap.Error(err))
	}
	c.Header("Location", "/orders/"+orderID)
	c.Data(http.StatusCreated, jsonContentType, body)
}

func (h *ordersHandler) replaceItems(c *gin.Context) {
	var req validation.ItemsRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	err := h.cfg.Writes.ReplaceItems(c.Request.Context(), c.Param("orderId"), callerIdentity(c), req.Pizzas())
	if err != nil {
		h.fail(c, "replace items", err, messages{
			forbidden: "You are not allowed to update the requested order.",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ordersHandler) changeStatus(c *gin.Context) {
	var req validation.StatusRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	ctx := c.Request.Context()
	orderID := c.Param("orderId")

	var err error
	msgs := messages{
		notFound:  "An order with the specified id could not be found.",
		forbidden: "You are not allowed to update an order with the provided id.",
	}
	if h.cfg.RestrictToCreator {
		msgs.conflict = "The order is not in a valid status to submit!"
		err = h.cfg.Writes.Submit(ctx, orderID, callerIdentity(c), req.Status)
	} else {
		msgs.conflict = "The provided status is invalid for the state of the order"
		err = h.cfg.Writes.Transition(ctx, orderID, req.Status)
	}
	if err != nil {
		h.fail(c, "change status", err, msgs)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps domain errors to client statuses. Anything unmapped is logged
// and reported as a generic 500.
func (h *ordersHandler) fail(c *gin.Context, op string, err error, m messages) {
	switch {
	case errors.Is(err, orders.ErrNotFound) && m.notFound != "":
		c.JSON(http.StatusNotFound, gin.H{"message": m.notFound})
	case errors.Is(err, orders.ErrForbidden) && m.forbidden != "":
		c.JSON(http.StatusForbidden, gin.H{"message": m.forbidden})
	case errors.Is(err, orders.ErrNoItems) && m.conflict != "":
		c.JSON(http.StatusConflict, gin.H{"message": "You cannot submit an order without any items!"})
	case errors.Is(err, orders.ErrConflict) && m.conflict != "":
		c.JSON(http.StatusConflict, gin.H{"message": m.conflict})
	default:
		h.log.Error(op+" failed",
			zap.String("order_id", c.Param("orderId")),
			zap.String("request_id", c.GetString(RequestIDHeader)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"message": genericFailure})
	}
}

// callerIdentity is the API Gateway source IP, or the client IP gin resolves
// when running outside Lambda.
func callerIdentity(c *gin.Context) string {
	if rc, ok := core.GetAPIGatewayContextFromContext(c.Request.Context()); ok && rc.Identity.SourceIP != "" {
		return rc.Identity.SourceIP
	}
	return c.ClientIP()
}
