package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/general-store/internal/core/domain"
	"github.com/rl1809/general-store/internal/core/service"
)

// GRPCHandler serves the transaction operations over gRPC. Mutations report
// business failures in the response body; reads use status codes.
type GRPCHandler struct {
	transactions TransactionService
	logger       *slog.Logger
}

func NewGRPCHandler(transactions TransactionService, logger *slog.Logger) *GRPCHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GRPCHandler{transactions: transactions, logger: logger}
}

func (h *GRPCHandler) CreateTransaction(ctx context.Context, req *TransactionRPCRequest) (*MutationResponse, error) {
	transaction, err := h.transactions.Create(ctx, req.IdempotencyKey, rpcInput(req))
	if err != nil {
		return h.failure(err), nil
	}

	return &MutationResponse{
		Success:     true,
		Message:     "Transaction added",
		Transaction: &transaction,
	}, nil
}

func (h *GRPCHandler) ListTransactions(ctx context.Context, _ *Empty) (*TransactionList, error) {
	transactions, err := h.transactions.List(ctx)
	if err != nil {
		return nil, h.statusError(err)
	}
	return &TransactionList{Transactions: transactions}, nil
}

func (h *GRPCHandler) GetTransaction(ctx context.Context, req *IDRequest) (*domain.Transaction, error) {
	if req.GetID() <= 0 {
		return nil, status.Error(codes.InvalidArgument, "Invalid id")
	}
	transaction, err := h.transactions.Get(ctx, req.ID)
	if err != nil {
		return nil, h.statusError(err)
	}
	return &transaction, nil
}

func (h *GRPCHandler) ListCustomerTransactions(ctx context.Context, req *IDRequest) (*TransactionList, error) {
	if req.GetID() <= 0 {
		return nil, status.Error(codes.InvalidArgument, "Invalid id")
	}
	transactions, err := h.transactions.ListByCustomer(ctx, req.ID)
	if err != nil {
		return nil, h.statusError(err)
	}
	return &TransactionList{Transactions: transactions}, nil
}

func (h *GRPCHandler) UpdateTransaction(ctx context.Context, req *TransactionRPCRequest) (*MutationResponse, error) {
	if req.ID <= 0 {
		return &MutationResponse{Success: false, Message: "Invalid id"}, nil
	}
	if err := h.transactions.Update(ctx, req.ID, rpcInput(req)); err != nil {
		return h.failure(err), nil
	}
	return &MutationResponse{Success: true, Message: "Updated the transaction"}, nil
}

func (h *GRPCHandler) DeleteTransaction(ctx context.Context, req *IDRequest) (*MutationResponse, error) {
	if req.GetID() <= 0 {
		return &MutationResponse{Success: false, Message: "Invalid id"}, nil
	}
	if err := h.transactions.Delete(ctx, req.ID); err != nil {
		return h.failure(err), nil
	}
	return &MutationResponse{Success: true, Message: "Transaction deleted"}, nil
}

func (r *IDRequest) GetID() int64 {
	if r == nil {
		return 0
	}
	return r.ID
}

func rpcInput(req *TransactionRPCRequest) domain.TransactionInput {
	return domain.TransactionInput{
		CustomerID: req.CustomerID,
		ProductID:  req.ProductID,
		ItemCount:  req.ItemCount,
	}
}

func (h *GRPCHandler) failure(err error) *MutationResponse {
	return &MutationResponse{Success: false, Message: h.message(err)}
}

func (h *GRPCHandler) message(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return "Invalid request data"
	case errors.Is(err, service.ErrNotFound):
		return "Not found"
	case errors.Is(err, service.ErrInsufficientInventory):
		return "Not enough in inventory"
	case errors.Is(err, service.ErrNoTransactions):
		return "The customer has no transactions"
	case errors.Is(err, service.ErrDuplicateRequest):
		return "Duplicate request"
	case errors.Is(err, service.ErrConflict):
		return "Inventory changed concurrently, retry the request"
	}
	h.logger.Error("rpc failed", "error", err)
	return "internal error"
}

func (h *GRPCHandler) statusError(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, "Transaction not found")
	case errors.Is(err, service.ErrNoTransactions):
		return status.Error(codes.FailedPrecondition, "The customer has no transactions")
	case errors.Is(err, service.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, "Invalid request data")
	}
	h.logger.Error("rpc failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}

// UnaryLoggingInterceptor logs every unary call with its status code.
func UnaryLoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("rpc",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"latency", time.Since(start),
		)
		return resp, err
	}
}
