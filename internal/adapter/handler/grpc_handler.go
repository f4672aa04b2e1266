package handler

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront-cache/internal/core/domain"
	"github.com/rl1809/storefront-cache/internal/core/service"
)

const grpcServiceName = "storefront.cache.v1.ProductCacheService"

type GetProductRequest struct {
	SessionID string `json:"sessionId"`
	RecordID  string `json:"recordId"`
}

type UpsertProductRequest struct {
	SessionID string               `json:"sessionId"`
	Product   ProductRecordRequest `json:"product"`
}

type ProductResponse struct {
	Product domain.ProductRecord `json:"product"`
}

type ListProductsRequest struct {
	SessionID string `json:"sessionId"`
}

type ListProductsResponse struct {
	Products []domain.ProductRecord `json:"products"`
}

type UpdateBalanceRequest struct {
	SessionID string          `json:"sessionId"`
	RecordID  string          `json:"recordId"`
	Balance   *BalanceRequest `json:"balance"`
}

type UpdateBalanceFieldRequest struct {
	SessionID string           `json:"sessionId"`
	RecordID  string           `json:"recordId"`
	Field     string           `json:"field"`
	Value     *decimal.Decimal `json:"value"`
}

type UpdateBalanceResponse struct {
	Applied bool `json:"applied"`
}

type UpdateBalancesBatchRequest struct {
	SessionID string                    `json:"sessionId"`
	Balances  map[string]BalanceRequest `json:"balances"`
}

type UpdateBalancesBatchResponse struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

// ProductCacheServer is the gRPC surface of the product cache.
type ProductCacheServer interface {
	GetProduct(context.Context, *GetProductRequest) (*ProductResponse, error)
	UpsertProduct(context.Context, *UpsertProductRequest) (*ProductResponse, error)
	ListProducts(context.Context, *ListProductsRequest) (*ListProductsResponse, error)
	UpdateBalance(context.Context, *UpdateBalanceRequest) (*UpdateBalanceResponse, error)
	UpdateBalanceField(context.Context, *UpdateBalanceFieldRequest) (*UpdateBalanceResponse, error)
	UpdateBalancesBatch(context.Context, *UpdateBalancesBatchRequest) (*UpdateBalancesBatchResponse, error)
}

type GRPCHandler struct {
	cacheService *service.ProductCacheService
}

var _ ProductCacheServer = (*GRPCHandler)(nil)

func NewGRPCHandler(cacheService *service.ProductCacheService) *GRPCHandler {
	return &GRPCHandler{cacheService: cacheService}
}

func (h *GRPCHandler) GetProduct(ctx context.Context, req *GetProductRequest) (*ProductResponse, error) {
	record, found, err := h.cacheService.Get(ctx, req.SessionID, req.RecordID)
	if err != nil {
		return nil, toStatus(err)
	}
	if !found {
		return nil, status.Error(codes.NotFound, "product not found")
	}
	return &ProductResponse{Product: record}, nil
}

func (h *GRPCHandler) UpsertProduct(ctx context.Context, req *UpsertProductRequest) (*ProductResponse, error) {
	record, err := req.Product.toDomain()
	if err != nil {
		return nil, toStatus(err)
	}
	if err := h.cacheService.Upsert(ctx, req.SessionID, record); err != nil {
		return nil, toStatus(err)
	}
	return &ProductResponse{Product: record}, nil
}

func (h *GRPCHandler) ListProducts(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error) {
	records, err := h.cacheService.GetAll(ctx, req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListProductsResponse{Products: records}, nil
}

func (h *GRPCHandler) UpdateBalance(ctx context.Context, req *UpdateBalanceRequest) (*UpdateBalanceResponse, error) {
	balance, err := req.Balance.toDomain()
	if err != nil {
		return nil, toStatus(err)
	}

	applied, err := h.cacheService.UpdateBalance(ctx, req.SessionID, req.RecordID, balance)
	if err != nil {
		return nil, toStatus(err)
	}
	if !applied {
		return nil, status.Error(codes.NotFound, "product not found")
	}
	return &UpdateBalanceResponse{Applied: true}, nil
}

func (h *GRPCHandler) UpdateBalanceField(ctx context.Context, req *UpdateBalanceFieldRequest) (*UpdateBalanceResponse, error) {
	field, err := domain.ParseBalanceField(req.Field)
	if err != nil {
		return nil, toStatus(err)
	}
	if req.Value == nil {
		return nil, status.Error(codes.InvalidArgument, "value is required")
	}

	applied, err := h.cacheService.UpdateBalanceField(ctx, req.SessionID, req.RecordID, field, *req.Value)
	if err != nil {
		return nil, toStatus(err)
	}
	if !applied {
		return nil, status.Error(codes.NotFound, "product not found")
	}
	return &UpdateBalanceResponse{Applied: true}, nil
}

func (h *GRPCHandler) UpdateBalancesBatch(ctx context.Context, req *UpdateBalancesBatchRequest) (*UpdateBalancesBatchResponse, error) {
	if err := h.cacheService.CheckBatchSize(len(req.Balances)); err != nil {
		return nil, toStatus(err)
	}
	updates := toBalanceUpdates(req.Balances)

	applied, err := h.cacheService.UpdateBalancesBatch(ctx, req.SessionID, updates)
	if err != nil {
		return nil, toStatus(err)
	}
	return &UpdateBalancesBatchResponse{Applied: applied, Skipped: len(req.Balances) - applied}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrStoreOperation):
		return status.Error(codes.Unavailable, "cache unavailable")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func RegisterProductCacheServer(s grpc.ServiceRegistrar, srv ProductCacheServer) {
	s.RegisterService(&productCacheServiceDesc, srv)
}

var productCacheServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*ProductCacheServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetProduct", Handler: unaryHandler("GetProduct", ProductCacheServer.GetProduct)},
		{MethodName: "UpsertProduct", Handler: unaryHandler("UpsertProduct", ProductCacheServer.UpsertProduct)},
		{MethodName: "ListProducts", Handler: unaryHandler("ListProducts", ProductCacheServer.ListProducts)},
		{MethodName: "UpdateBalance", Handler: unaryHandler("UpdateBalance", ProductCacheServer.UpdateBalance)},
		{MethodName: "UpdateBalanceField", Handler: unaryHandler("UpdateBalanceField", ProductCacheServer.UpdateBalanceField)},
		{MethodName: "UpdateBalancesBatch", Handler: unaryHandler("UpdateBalancesBatch", ProductCacheServer.UpdateBalancesBatch)},
	},
	Streams: []grpc.StreamDesc{},
}

func unaryHandler[Req, Resp any](method string, call func(ProductCacheServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + grpcServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ProductCacheServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		next := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ProductCacheServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, next)
	}
}

// ProductCacheClient calls the product cache service over a JSON-coded connection.
type ProductCacheClient struct {
	cc grpc.ClientConnInterface
}

func NewProductCacheClient(cc grpc.ClientConnInterface) *ProductCacheClient {
	return &ProductCacheClient{cc: cc}
}

func (c *ProductCacheClient) GetProduct(ctx context.Context, req *GetProductRequest) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c.cc, "GetProduct", req)
}

func (c *ProductCacheClient) UpsertProduct(ctx context.Context, req *UpsertProductRequest) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c.cc, "UpsertProduct", req)
}

func (c *ProductCacheClient) ListProducts(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error) {
	return invoke[ListProductsResponse](ctx, c.cc, "ListProducts", req)
}

func (c *ProductCacheClient) UpdateBalance(ctx context.Context, req *UpdateBalanceRequest) (*UpdateBalanceResponse, error) {
	return invoke[UpdateBalanceResponse](ctx, c.cc, "UpdateBalance", req)
}

func (c *ProductCacheClient) UpdateBalanceField(ctx context.Context, req *UpdateBalanceFieldRequest) (*UpdateBalanceResponse, error) {
	return invoke[UpdateBalanceResponse](ctx, c.cc, "UpdateBalanceField", req)
}

func (c *ProductCacheClient) UpdateBalancesBatch(ctx context.Context, req *UpdateBalancesBatchRequest) (*UpdateBalancesBatchResponse, error) {
	return invoke[UpdateBalancesBatchResponse](ctx, c.cc, "UpdateBalancesBatch", req)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any) (*Resp, error) {
	out := new(Resp)
	err := cc.Invoke(ctx, "/"+grpcServiceName+"/"+method, req, out, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	return out, nil
}
