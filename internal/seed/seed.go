package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	catalogdomain "github.com/learnsphere/tutorpay/internal/catalog/domain"
	"gorm.io/gorm"
)

type demoProduct struct {
	Type     catalogdomain.ProductType
	Educator string
	Title    string
	Price    float64
	Capacity int
}

var (
	demoStudents = []string{
		"Asha Verma",
		"Rohan Iyer",
		"Meera Pillai",
	}

	demoEducators = []string{
		"Kavita Rao",
		"Arjun Nair",
	}

	demoProducts = []demoProduct{
		{Type: catalogdomain.ProductTypeCourse, Educator: "Kavita Rao", Title: "Algebra Foundations", Price: 49900},
		{Type: catalogdomain.ProductTypeTestSeries, Educator: "Kavita Rao", Title: "JEE Mains Mock Series", Price: 29900},
		{Type: catalogdomain.ProductTypeWebinar, Educator: "Arjun Nair", Title: "Cracking Organic Chemistry", Price: 9900, Capacity: 100},
		{Type: catalogdomain.ProductTypeLiveClass, Educator: "Arjun Nair", Title: "Physics Doubt Clinic", Price: 14900, Capacity: 25},
	}
)

// EnsureDemoCatalog seeds a small demo catalog for local development.
// Every lookup is keyed on a stable natural key so reruns are no-ops.
func EnsureDemoCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range demoStudents {
			if _, err := ensureStudentTx(ctx, tx, node, name); err != nil {
				return err
			}
		}

		educators := make(map[string]catalogdomain.Educator, len(demoEducators))
		for _, name := range demoEducators {
			educator, err := ensureEducatorTx(ctx, tx, node, name)
			if err != nil {
				return err
			}
			educators[name] = educator
		}

		for _, p := range demoProducts {
			educator, ok := educators[p.Educator]
			if !ok {
				return errors.New("demo product references unknown educator")
			}
			if err := ensureProductTx(ctx, tx, node, educator.ID, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureStudentTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, name string) (catalogdomain.Student, error) {
	email := demoEmail(name)

	var student catalogdomain.Student
	err := tx.WithContext(ctx).Where("email = ?", email).First(&student).Error
	if err == nil {
		return student, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return student, err
	}
	now := time.Now().UTC()
	student = catalogdomain.Student{
		ID:        node.Generate(),
		Name:      name,
		Email:     email,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&student).Error; err != nil {
		return student, err
	}
	return student, nil
}

func ensureEducatorTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, name string) (catalogdomain.Educator, error) {
	email := demoEmail(name)

	var educator catalogdomain.Educator
	err := tx.WithContext(ctx).Where("email = ?", email).First(&educator).Error
	if err == nil {
		return educator, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return educator, err
	}
	now := time.Now().UTC()
	educator = catalogdomain.Educator{
		ID:        node.Generate(),
		Name:      name,
		Email:     email,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&educator).Error; err != nil {
		return educator, err
	}
	return educator, nil
}

func ensureProductTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, educatorID snowflake.ID, p demoProduct) error {
	productSlug := slug.Make(p.Title)

	var product catalogdomain.Product
	err := tx.WithContext(ctx).
		Where("type = ? AND slug = ?", p.Type, productSlug).
		First(&product).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	now := time.Now().UTC()
	product = catalogdomain.Product{
		ID:         node.Generate(),
		Type:       p.Type,
		EducatorID: educatorID,
		Title:      p.Title,
		Slug:       productSlug,
		Price:      p.Price,
		Currency:   "INR",
		Capacity:   p.Capacity,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return tx.WithContext(ctx).Create(&product).Error
}

func demoEmail(name string) string {
	return slug.Make(name) + "@demo.tutorpay.test"
}
