package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/learnsphere/tutorpay/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindStudent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Student, error) {
	var item domain.Student
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, active, created_at, updated_at
		 FROM students
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindEducator(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Educator, error) {
	var item domain.Educator
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, active, created_at, updated_at
		 FROM educators
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindProduct(ctx context.Context, db *gorm.DB, productType domain.ProductType, id snowflake.ID) (*domain.Product, error) {
	var item domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, type, educator_id, title, slug, price, currency, capacity, active,
			created_at, updated_at
		 FROM products
		 WHERE type = ? AND id = ?
		 LIMIT 1`,
		productType,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) CountEnrollments(ctx context.Context, db *gorm.DB, productType domain.ProductType, productID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM enrollments
		 WHERE product_type = ? AND product_id = ?`,
		productType,
		productID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) EnrollmentExists(ctx context.Context, db *gorm.DB, productType domain.ProductType, productID, studentID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM enrollments
		 WHERE product_type = ? AND product_id = ? AND student_id = ?`,
		productType,
		productID,
		studentID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) InsertEnrollment(ctx context.Context, db *gorm.DB, enrollment *domain.Enrollment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO enrollments (
			id, product_type, product_id, student_id, snapshot, enrolled_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_type, product_id, student_id) DO NOTHING`,
		enrollment.ID,
		enrollment.ProductType,
		enrollment.ProductID,
		enrollment.StudentID,
		enrollment.Snapshot,
		enrollment.EnrolledAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
