package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ProductType enumerates the purchasable catalog entities.
type ProductType string

const (
	ProductTypeCourse     ProductType = "course"
	ProductTypeTestSeries ProductType = "test_series"
	ProductTypeWebinar    ProductType = "webinar"
	ProductTypeTest       ProductType = "test"
	ProductTypeLiveClass  ProductType = "live_class"
)

// ParseProductType normalizes caller input into a known product type.
func ParseProductType(raw string) (ProductType, bool) {
	switch ProductType(strings.ToLower(strings.TrimSpace(raw))) {
	case ProductTypeCourse:
		return ProductTypeCourse, true
	case ProductTypeTestSeries, "testseries":
		return ProductTypeTestSeries, true
	case ProductTypeWebinar:
		return ProductTypeWebinar, true
	case ProductTypeTest:
		return ProductTypeTest, true
	case ProductTypeLiveClass, "liveclass":
		return ProductTypeLiveClass, true
	default:
		return "", false
	}
}

type Student struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Email     string       `json:"email" gorm:"type:text;not null"`
	Active    bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Student) TableName() string { return "students" }

type Educator struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Email     string       `json:"email" gorm:"type:text;not null"`
	Active    bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Educator) TableName() string { return "educators" }

// Product is one purchasable catalog row. Price is denominated in minor
// currency units; Capacity of zero means unlimited seats.
type Product struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	Type       ProductType  `json:"type" gorm:"type:text;not null;index:idx_products_type_id"`
	EducatorID snowflake.ID `json:"educator_id" gorm:"index"`
	Title      string       `json:"title" gorm:"type:text;not null"`
	Slug       string       `json:"slug" gorm:"type:text;not null"`
	Price      float64      `json:"price" gorm:"not null"`
	Currency   string       `json:"currency" gorm:"type:text;not null;default:'INR'"`
	Capacity   int          `json:"capacity" gorm:"not null;default:0"`
	Active     bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// Enrollment grants a student access to a product. The unique key on
// (product_type, product_id, student_id) makes EnrollStudent idempotent.
type Enrollment struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	ProductType ProductType    `json:"product_type" gorm:"type:text;not null;uniqueIndex:uniq_enrollment"`
	ProductID   snowflake.ID   `json:"product_id" gorm:"not null;uniqueIndex:uniq_enrollment"`
	StudentID   snowflake.ID   `json:"student_id" gorm:"not null;uniqueIndex:uniq_enrollment"`
	Snapshot    datatypes.JSON `json:"snapshot" gorm:"type:jsonb"`
	EnrolledAt  time.Time      `json:"enrolled_at" gorm:"not null"`
}

func (Enrollment) TableName() string { return "enrollments" }

// Snapshot is the immutable copy of priced/display attributes captured at
// order-creation time. Enrollment always reflects these purchase-time terms,
// not the catalog's current state.
type Snapshot struct {
	ProductID   snowflake.ID `json:"product_id"`
	ProductType ProductType  `json:"product_type"`
	Title       string       `json:"title"`
	Slug        string       `json:"slug"`
	AmountMinor int64        `json:"amount_minor"`
	Currency    string       `json:"currency"`
	EducatorID  snowflake.ID `json:"educator_id"`
	CapturedAt  time.Time    `json:"captured_at"`
}
