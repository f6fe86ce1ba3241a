package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrStudentNotFound  = errors.New("student_not_found")
	ErrStudentInactive  = errors.New("student_inactive")
	ErrProductNotFound  = errors.New("product_not_found")
	ErrProductInactive  = errors.New("product_inactive")
	ErrEducatorNotFound = errors.New("educator_not_found")
	ErrAlreadyEnrolled  = errors.New("already_enrolled")
	ErrCapacityExceeded = errors.New("capacity_exceeded")
)

// Service is the catalog collaborator consumed by the payment lifecycle.
type Service interface {
	GetStudentByID(ctx context.Context, id snowflake.ID) (*Student, error)
	GetEducatorByID(ctx context.Context, id snowflake.ID) (*Educator, error)

	// GetProductDetails returns the authoritative product row; price is never
	// trusted from the caller.
	GetProductDetails(ctx context.Context, productType ProductType, id snowflake.ID) (*Product, error)

	IsAlreadyEnrolled(ctx context.Context, productType ProductType, productID, studentID snowflake.ID) (bool, error)
	EnrolledCount(ctx context.Context, productType ProductType, productID snowflake.ID) (int64, error)

	// EnrollStudent is idempotent per (product type, product, student); a
	// repeated call is a no-op, never an error.
	EnrollStudent(ctx context.Context, productType ProductType, productID, studentID snowflake.ID, snapshot datatypes.JSON) error
}

// Repository is the storage surface behind Service.
type Repository interface {
	FindStudent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Student, error)
	FindEducator(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Educator, error)
	FindProduct(ctx context.Context, db *gorm.DB, productType ProductType, id snowflake.ID) (*Product, error)
	CountEnrollments(ctx context.Context, db *gorm.DB, productType ProductType, productID snowflake.ID) (int64, error)
	EnrollmentExists(ctx context.Context, db *gorm.DB, productType ProductType, productID, studentID snowflake.ID) (bool, error)
	InsertEnrollment(ctx context.Context, db *gorm.DB, enrollment *Enrollment) (bool, error)
}
