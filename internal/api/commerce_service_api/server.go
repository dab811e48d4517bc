package commerce_service_api

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/service/booking"
	"github.com/Domenick1991/esteticcore/internal/service/payments"
	apperrors "github.com/Domenick1991/esteticcore/pkg/errors"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "commerce.v1.CommerceService"
	errorDomain = "esteticcore"
)

// CommerceServiceServer exchanges google.protobuf.Struct messages so the
// service can be served without generated stubs.
type CommerceServiceServer interface {
	ClaimSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CreatePayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ConfirmPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AbortPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(CommerceServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommerceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ClaimSlot", Handler: unaryHandler("ClaimSlot", CommerceServiceServer.ClaimSlot)},
		{MethodName: "CreatePayment", Handler: unaryHandler("CreatePayment", CommerceServiceServer.CreatePayment)},
		{MethodName: "ConfirmPayment", Handler: unaryHandler("ConfirmPayment", CommerceServiceServer.ConfirmPayment)},
		{MethodName: "AbortPayment", Handler: unaryHandler("AbortPayment", CommerceServiceServer.AbortPayment)},
		{MethodName: "GetPayment", Handler: unaryHandler("GetPayment", CommerceServiceServer.GetPayment)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "commerce/v1/commerce.proto",
}

func RegisterCommerceServiceServer(s grpc.ServiceRegistrar, srv CommerceServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unaryHandler(name string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CommerceServiceServer), ctx, req.(*structpb.Struct))
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		return interceptor(ctx, in, info, handler)
	}
}

// Server adapts the booking and payment use cases to the gRPC service.
type Server struct {
	bookings booking.BookingUseCase
	payments payments.PaymentUseCase
}

func NewServer(bookings booking.BookingUseCase, payments payments.PaymentUseCase) *Server {
	return &Server{bookings: bookings, payments: payments}
}

func (s *Server) ClaimSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	slotID, err := intField(req, "slot_id")
	if err != nil {
		return nil, err
	}
	b, err := s.bookings.ClaimSlot(ctx, slotID, domain.Customer{
		Name:  stringField(req, "name"),
		Email: stringField(req, "email"),
		Phone: stringField(req, "phone"),
		Notes: stringField(req, "notes"),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(bookingFields(b))
}

func (s *Server) CreatePayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ref, err := reference(req)
	if err != nil {
		return nil, err
	}
	amount, err := optionalIntField(req, "amount")
	if err != nil {
		return nil, err
	}
	checkout, err := s.payments.CreatePayment(ctx, payments.CreatePaymentInput{
		Reference:   ref,
		Amount:      amount,
		Description: stringField(req, "description"),
		DonorName:   stringField(req, "donor_name"),
		DonorEmail:  stringField(req, "donor_email"),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{
		"intent_id":    checkout.IntentID,
		"buy_order":    checkout.BuyOrder,
		"token":        checkout.Token,
		"amount":       checkout.Amount,
		"currency":     checkout.Currency,
		"redirect_url": checkout.RedirectURL,
	})
}

func (s *Server) ConfirmPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	conf, err := s.payments.ConfirmPayment(ctx, stringField(req, "token"))
	if err != nil {
		return nil, toStatus(err)
	}
	out := map[string]any{
		"ok":        conf.OK,
		"buy_order": conf.BuyOrder,
		"status":    string(conf.Status),
	}
	if conf.Intent != nil {
		out["intent_id"] = conf.Intent.ID
	}
	return toStruct(out)
}

func (s *Server) AbortPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	intent, err := s.payments.AbortPayment(ctx, payments.AbortInput{
		Token:    stringField(req, "token"),
		BuyOrder: stringField(req, "buy_order"),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(intentFields(intent))
}

func (s *Server) GetPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	intent, err := s.payments.GetPayment(ctx, stringField(req, "id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(intentFields(intent))
}

func reference(req *structpb.Struct) (domain.Reference, error) {
	var ref domain.Reference
	for _, kind := range []domain.ReferenceKind{domain.ReferenceOrder, domain.ReferenceBooking, domain.ReferenceDonation} {
		key := string(kind) + "_id"
		id, err := optionalIntField(req, key)
		if err != nil {
			return nil, err
		}
		if id == 0 {
			continue
		}
		if ref != nil {
			return nil, status.Error(codes.InvalidArgument, "only one of order_id, booking_id and donation_id may be set")
		}
		if ref, err = domain.NewReference(kind, id); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}
	return ref, nil
}

func bookingFields(b *domain.Booking) map[string]any {
	out := map[string]any{
		"id":             b.ID,
		"slot_id":        b.SlotID,
		"status":         string(b.Status),
		"customer_name":  b.CustomerName,
		"customer_email": b.CustomerEmail,
		"created_at":     b.CreatedAt.Format(time.RFC3339),
	}
	if b.Slot != nil {
		out["starts_at"] = b.Slot.StartsAt.Format(time.RFC3339)
		out["ends_at"] = b.Slot.EndsAt.Format(time.RFC3339)
	}
	if b.Service != nil {
		out["service_id"] = b.Service.ID
		out["service_name"] = b.Service.Name
	}
	return out
}

func intentFields(p *domain.PaymentIntent) map[string]any {
	out := map[string]any{
		"id":        p.ID,
		"buy_order": p.BuyOrder,
		"amount":    p.Amount,
		"currency":  p.Currency,
		"status":    string(p.Status),
	}
	if p.Reference != nil {
		out["reference"] = p.Reference.String()
	}
	if p.AuthorizationCode != "" {
		out["authorization_code"] = p.AuthorizationCode
	}
	if p.FailureReason != "" {
		out["failure_reason"] = p.FailureReason
	}
	if p.ReconciliationRequired {
		out["reconciliation_required"] = true
	}
	return out
}

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

// optionalIntField accepts JSON numbers and the string form protojson uses
// for 64-bit integers. A missing field is zero.
func optionalIntField(req *structpb.Struct, key string) (int64, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := kind.NumberValue
		if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
		}
		return int64(f), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(kind.StringValue, 10, 64)
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
		}
		return n, nil
	case *structpb.Value_NullValue:
		return 0, nil
	}
	return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
}

func intField(req *structpb.Struct, key string) (int64, error) {
	n, err := optionalIntField(req, key)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return n, nil
}

// toStatus converts service errors to gRPC statuses carrying an ErrorInfo
// with the AppError code as reason and its details as metadata.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok && !apperrors.IsAppError(err) {
		return err
	}
	appErr := apperrors.AsAppError(err)

	code := codes.Internal
	switch appErr.Code {
	case apperrors.CodeValidation:
		code = codes.InvalidArgument
	case apperrors.CodeNotFound:
		code = codes.NotFound
	case apperrors.CodeConflict:
		code = codes.Aborted
	case apperrors.CodeGateway:
		code = codes.Unavailable
	}

	metadata := make(map[string]string, len(appErr.Details)+1)
	for k, v := range appErr.Details {
		metadata[k] = fmt.Sprint(v)
	}
	if appErr.Retryable {
		metadata["retryable"] = "true"
	}

	st := status.New(code, appErr.Message)
	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   appErr.Code,
		Domain:   errorDomain,
		Metadata: metadata,
	})
	if detailErr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// ErrorInfo extracts the ErrorInfo detail from a gRPC error, if present.
func ErrorInfo(err error) (*errdetails.ErrorInfo, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return nil, false
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info, true
		}
	}
	return nil, false
}

var _ CommerceServiceServer = (*Server)(nil)
