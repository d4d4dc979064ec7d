package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/rl1809/general-store/internal/core/domain"
	"github.com/rl1809/general-store/internal/core/service"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// TransactionService is the transaction API used by the HTTP and gRPC handlers.
type TransactionService interface {
	Create(ctx context.Context, idempotencyKey string, in domain.TransactionInput) (domain.Transaction, error)
	List(ctx context.Context) ([]domain.Transaction, error)
	Get(ctx context.Context, id int64) (domain.Transaction, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]domain.Transaction, error)
	Update(ctx context.Context, id int64, in domain.TransactionInput) error
	Delete(ctx context.Context, id int64) error
}

// CatalogService is the read-only product and customer API.
type CatalogService interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	GetCustomer(ctx context.Context, id int64) (domain.Customer, error)
}

type HTTPHandler struct {
	transactions TransactionService
	catalog      CatalogService
	logger       *slog.Logger
}

type TransactionHTTPRequest struct {
	CustomerID int64 `json:"customerId" validate:"required,gt=0"`
	ProductID  int64 `json:"productId" validate:"required,gt=0"`
	ItemCount  int   `json:"itemCount" validate:"required,gt=0"`
}

func (r TransactionHTTPRequest) input() domain.TransactionInput {
	return domain.TransactionInput{
		CustomerID: r.CustomerID,
		ProductID:  r.ProductID,
		ItemCount:  r.ItemCount,
	}
}

type CreateTransactionHTTPResponse struct {
	Message     string             `json:"message"`
	Transaction domain.Transaction `json:"transaction"`
}

func NewHTTPHandler(transactions TransactionService, catalog CatalogService, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPHandler{transactions: transactions, catalog: catalog, logger: logger}
}

// NewRouter builds the gin engine with middleware and every route registered.
func NewRouter(h *HTTPHandler) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), LoggingMiddleware(h.logger), gin.Recovery())
	h.Register(router)
	return router
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	transactions := r.Group("/transactions")
	{
		transactions.POST("", h.CreateTransaction)
		transactions.GET("", h.ListTransactions)
		transactions.GET("/:id", h.GetTransaction)
		transactions.GET("/customer/:id", h.ListCustomerTransactions)
		transactions.PUT("/:id", h.UpdateTransaction)
		transactions.DELETE("/:id", h.DeleteTransaction)
	}

	r.GET("/products", h.ListProducts)
	r.GET("/products/:id", h.GetProduct)
	r.GET("/customers/:id", h.GetCustomer)
}

func (h *HTTPHandler) CreateTransaction(c *gin.Context) {
	req, ok := h.bindTransaction(c, "The request body cannot be empty")
	if !ok {
		return
	}

	transaction, err := h.transactions.Create(c.Request.Context(), c.GetHeader(IdempotencyKeyHeader), req.input())
	if err != nil {
		h.respondServiceError(c, err, "Customer or product not found")
		return
	}

	c.JSON(http.StatusOK, CreateTransactionHTTPResponse{
		Message:     "Transaction added",
		Transaction: transaction,
	})
}

func (h *HTTPHandler) ListTransactions(c *gin.Context) {
	transactions, err := h.transactions.List(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, transactions)
}

func (h *HTTPHandler) GetTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	transaction, err := h.transactions.Get(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err, "Transaction not found")
		return
	}
	c.JSON(http.StatusOK, transaction)
}

func (h *HTTPHandler) ListCustomerTransactions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	transactions, err := h.transactions.ListByCustomer(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, transactions)
}

func (h *HTTPHandler) UpdateTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	req, ok := h.bindTransaction(c, "Body cannot be empty")
	if !ok {
		return
	}

	if err := h.transactions.Update(c.Request.Context(), id, req.input()); err != nil {
		h.respondServiceError(c, err, "Transaction, customer or product not found")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Updated the transaction"})
}

func (h *HTTPHandler) DeleteTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.transactions.Delete(c.Request.Context(), id); err != nil {
		h.respondServiceError(c, err, "Transaction not found")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Transaction deleted"})
}

func (h *HTTPHandler) ListProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err, "")
		return
	}

	views := make([]domain.ProductView, len(products))
	for i, p := range products {
		views[i] = p.View()
	}
	c.JSON(http.StatusOK, views)
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err, "Product not found")
		return
	}
	c.JSON(http.StatusOK, product.View())
}

func (h *HTTPHandler) GetCustomer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	customer, err := h.catalog.GetCustomer(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err, "Customer not found")
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) bindTransaction(c *gin.Context, emptyMessage string) (TransactionHTTPRequest, bool) {
	var req TransactionHTTPRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		if errors.Is(err, io.EOF) {
			RespondWithError(c, http.StatusBadRequest, emptyMessage)
		} else {
			RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		}
		return req, false
	}
	if isNullBody(c) {
		RespondWithError(c, http.StatusBadRequest, emptyMessage)
		return req, false
	}
	if validationErrors := ValidateRequest(req); validationErrors != nil {
		RespondWithValidationError(c, validationErrors)
		return req, false
	}
	return req, true
}

// isNullBody reports a literal JSON null, which decodes without error.
func isNullBody(c *gin.Context) bool {
	body, _ := c.Get(gin.BodyBytesKey)
	b, _ := body.([]byte)
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		RespondWithError(c, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) respondServiceError(c *gin.Context, err error, notFoundMessage string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		RespondWithError(c, http.StatusBadRequest, "Invalid request data")
	case errors.Is(err, service.ErrNotFound):
		if notFoundMessage == "" {
			notFoundMessage = "Not found"
		}
		RespondWithError(c, http.StatusNotFound, notFoundMessage)
	case errors.Is(err, service.ErrInsufficientInventory):
		RespondWithError(c, http.StatusBadRequest, "Not enough in inventory")
	case errors.Is(err, service.ErrNoTransactions):
		RespondWithError(c, http.StatusBadRequest, "The customer has no transactions")
	case errors.Is(err, service.ErrDuplicateRequest):
		RespondWithError(c, http.StatusConflict, "Duplicate request")
	case errors.Is(err, service.ErrConflict):
		RespondWithError(c, http.StatusConflict, "Inventory changed concurrently, retry the request")
	default:
		h.logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString(requestIDKey),
			"error", err,
		)
		_ = c.Error(err)
		RespondWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}
