package service

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	catalogdomain "github.com/learnsphere/tutorpay/internal/catalog/domain"
	"github.com/learnsphere/tutorpay/internal/config"
	"github.com/learnsphere/tutorpay/internal/gateway"
	"github.com/learnsphere/tutorpay/internal/intent/domain"
	obsmetrics "github.com/learnsphere/tutorpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Catalog    catalogdomain.Service
	Gateway    *gateway.Client
	Payments   *config.PaymentsConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	catalog    catalogdomain.Service
	gateway    *gateway.Client
	payments   *config.PaymentsConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("intent.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		catalog:    p.Catalog,
		gateway:    p.Gateway,
		payments:   p.Payments,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.CreateOrderResponse, error) {
	if req.StudentID == 0 || req.ProductID == 0 {
		return nil, domain.ErrMissingFields
	}

	productType, ok := catalogdomain.ParseProductType(req.ProductType)
	if !ok {
		return nil, domain.ErrInvalidProductType
	}

	student, err := s.catalog.GetStudentByID(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !student.Active {
		return nil, catalogdomain.ErrStudentInactive
	}

	product, err := s.catalog.GetProductDetails(ctx, productType, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, catalogdomain.ErrProductInactive
	}

	if product.Capacity > 0 {
		enrolled, err := s.catalog.EnrolledCount(ctx, productType, product.ID)
		if err != nil {
			return nil, err
		}
		if enrolled >= int64(product.Capacity) {
			return nil, catalogdomain.ErrCapacityExceeded
		}
	}

	enrolled, err := s.catalog.IsAlreadyEnrolled(ctx, productType, product.ID, student.ID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, catalogdomain.ErrAlreadyEnrolled
	}

	// The price comes from the authoritative product row, never the caller,
	// and is rounded to the nearest minor unit.
	amount := int64(math.Round(product.Price))
	if amount <= 0 {
		return nil, domain.ErrInvalidPrice
	}

	now := time.Now().UTC()
	snapshot := catalogdomain.Snapshot{
		ProductID:   product.ID,
		ProductType: productType,
		Title:       product.Title,
		Slug:        product.Slug,
		AmountMinor: amount,
		Currency:    product.Currency,
		EducatorID:  product.EducatorID,
		CapturedAt:  now,
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}

	expiry := time.Duration(s.payments.Get().IntentExpiryMinutes) * time.Minute
	receipt := "rcpt_" + strings.ToLower(ulid.Make().String())

	intent := &domain.PaymentIntent{
		ID:              s.genID.Generate(),
		StudentID:       student.ID,
		ProductID:       product.ID,
		ProductType:     productType,
		Amount:          amount,
		Currency:        product.Currency,
		Status:          domain.StatusPending,
		Receipt:         receipt,
		ProductSnapshot: datatypes.JSON(snapshotJSON),
		ExpiresAt:       now.Add(expiry),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, intent); err != nil {
		return nil, err
	}

	order, err := s.gateway.CreateOrder(ctx, gateway.OrderRequest{
		Amount:   amount,
		Currency: product.Currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"intent_id":    intent.ID.String(),
			"product_type": string(productType),
		},
	})
	if err != nil {
		// The pending intent stays behind and expires on its own; retrying
		// order creation starts a fresh intent.
		s.log.Error("gateway order creation failed, intent will expire",
			zap.String("intent_id", intent.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.repo.AttachGatewayOrder(ctx, s.db, intent.ID, order.ID); err != nil {
		return nil, err
	}

	s.obsMetrics.RecordOrderCreated(ctx, string(productType))
	s.log.Info("order initiated",
		zap.String("intent_id", intent.ID.String()),
		zap.String("gateway_order_id", order.ID),
		zap.Int64("amount", amount),
		zap.String("currency", product.Currency),
	)

	return &domain.CreateOrderResponse{
		IntentID:       intent.ID,
		GatewayOrderID: order.ID,
		Amount:         amount,
		Currency:       product.Currency,
		GatewayKey:     s.gateway.PublicKey(),
		Product: domain.ProductBrief{
			Title: product.Title,
			Type:  productType,
		},
	}, nil
}

func (s *Service) GetIntent(ctx context.Context, id snowflake.ID) (*domain.PaymentIntent, error) {
	intent, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, domain.ErrIntentNotFound
	}
	return intent, nil
}
