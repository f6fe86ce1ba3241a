package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/learnsphere/tutorpay/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) GetStudentByID(ctx context.Context, id snowflake.ID) (*domain.Student, error) {
	student, err := s.repo.FindStudent(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, domain.ErrStudentNotFound
	}
	return student, nil
}

func (s *Service) GetEducatorByID(ctx context.Context, id snowflake.ID) (*domain.Educator, error) {
	educator, err := s.repo.FindEducator(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if educator == nil {
		return nil, domain.ErrEducatorNotFound
	}
	return educator, nil
}

func (s *Service) GetProductDetails(ctx context.Context, productType domain.ProductType, id snowflake.ID) (*domain.Product, error) {
	product, err := s.repo.FindProduct(ctx, s.db, productType, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}
	return product, nil
}

func (s *Service) IsAlreadyEnrolled(ctx context.Context, productType domain.ProductType, productID, studentID snowflake.ID) (bool, error) {
	return s.repo.EnrollmentExists(ctx, s.db, productType, productID, studentID)
}

func (s *Service) EnrolledCount(ctx context.Context, productType domain.ProductType, productID snowflake.ID) (int64, error) {
	return s.repo.CountEnrollments(ctx, s.db, productType, productID)
}

func (s *Service) EnrollStudent(ctx context.Context, productType domain.ProductType, productID, studentID snowflake.ID, snapshot datatypes.JSON) error {
	enrollment := &domain.Enrollment{
		ID:          s.genID.Generate(),
		ProductType: productType,
		ProductID:   productID,
		StudentID:   studentID,
		Snapshot:    snapshot,
		EnrolledAt:  time.Now().UTC(),
	}

	inserted, err := s.repo.InsertEnrollment(ctx, s.db, enrollment)
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Debug("enrollment already present",
			zap.String("product_type", string(productType)),
			zap.String("product_id", productID.String()),
			zap.String("student_id", studentID.String()),
		)
	}
	return nil
}
