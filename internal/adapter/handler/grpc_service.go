package handler

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/general-store/internal/core/domain"
)

const transactionServiceName = "generalstore.TransactionService"

type TransactionRPCRequest struct {
	ID             int64  `json:"id,omitempty"`
	CustomerID     int64  `json:"customerId"`
	ProductID      int64  `json:"productId"`
	ItemCount      int    `json:"itemCount"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type IDRequest struct {
	ID int64 `json:"id"`
}

type Empty struct{}

type MutationResponse struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
}

type TransactionList struct {
	Transactions []domain.Transaction `json:"transactions"`
}

type TransactionServer interface {
	CreateTransaction(context.Context, *TransactionRPCRequest) (*MutationResponse, error)
	ListTransactions(context.Context, *Empty) (*TransactionList, error)
	GetTransaction(context.Context, *IDRequest) (*domain.Transaction, error)
	ListCustomerTransactions(context.Context, *IDRequest) (*TransactionList, error)
	UpdateTransaction(context.Context, *TransactionRPCRequest) (*MutationResponse, error)
	DeleteTransaction(context.Context, *IDRequest) (*MutationResponse, error)
}

func RegisterTransactionServer(s grpc.ServiceRegistrar, srv TransactionServer) {
	s.RegisterService(&transactionServiceDesc, srv)
}

var transactionServiceDesc = grpc.ServiceDesc{
	ServiceName: transactionServiceName,
	HandlerType: (*TransactionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateTransaction", Handler: unaryHandler("CreateTransaction", TransactionServer.CreateTransaction)},
		{MethodName: "ListTransactions", Handler: unaryHandler("ListTransactions", TransactionServer.ListTransactions)},
		{MethodName: "GetTransaction", Handler: unaryHandler("GetTransaction", TransactionServer.GetTransaction)},
		{MethodName: "ListCustomerTransactions", Handler: unaryHandler("ListCustomerTransactions", TransactionServer.ListCustomerTransactions)},
		{MethodName: "UpdateTransaction", Handler: unaryHandler("UpdateTransaction", TransactionServer.UpdateTransaction)},
		{MethodName: "DeleteTransaction", Handler: unaryHandler("DeleteTransaction", TransactionServer.DeleteTransaction)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "generalstore/transaction.json",
}

func fullMethod(method string) string {
	return "/" + transactionServiceName + "/" + method
}

func unaryHandler[Req, Resp any](method string, call func(TransactionServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TransactionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TransactionServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TransactionClient calls the transaction service with the JSON codec.
type TransactionClient struct {
	cc grpc.ClientConnInterface
}

func NewTransactionClient(cc grpc.ClientConnInterface) *TransactionClient {
	return &TransactionClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TransactionClient) CreateTransaction(ctx context.Context, in *TransactionRPCRequest, opts ...grpc.CallOption) (*MutationResponse, error) {
	return invoke[MutationResponse](ctx, c.cc, "CreateTransaction", in, opts...)
}

func (c *TransactionClient) ListTransactions(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*TransactionList, error) {
	return invoke[TransactionList](ctx, c.cc, "ListTransactions", in, opts...)
}

func (c *TransactionClient) GetTransaction(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*domain.Transaction, error) {
	return invoke[domain.Transaction](ctx, c.cc, "GetTransaction", in, opts...)
}

func (c *TransactionClient) ListCustomerTransactions(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*TransactionList, error) {
	return invoke[TransactionList](ctx, c.cc, "ListCustomerTransactions", in, opts...)
}

func (c *TransactionClient) UpdateTransaction(ctx context.Context, in *TransactionRPCRequest, opts ...grpc.CallOption) (*MutationResponse, error) {
	return invoke[MutationResponse](ctx, c.cc, "UpdateTransaction", in, opts...)
}

func (c *TransactionClient) DeleteTransaction(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*MutationResponse, error) {
	return invoke[MutationResponse](ctx, c.cc, "DeleteTransaction", in, opts...)
}
