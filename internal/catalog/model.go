package catalog

import "time"

// Product is a catalog entry. Products are immutable once created.
type Product struct {
	ID          string    `json:"id" bson:"_id"`
	Name        string    `json:"name" bson:"name"`
	Price       int64     `json:"price" bson:"price"`
	Description string    `json:"description" bson:"description"`
	Category    string    `json:"category" bson:"category"`
	Images      []string  `json:"images" bson:"images"`
	ImageURLs   []string  `json:"imageUrls" bson:"-"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// Categories lists the storefront category labels in display order.
var Categories = []string{
	"Travel Comfort",
	"Home Essentials",
	"Tech Accessories",
	"Budget Finds",
}

// SortKey names a sortable product attribute.
type SortKey string

const (
	SortByCreatedAt SortKey = "createdAt"
	SortByName      SortKey = "name"
	SortByPrice     SortKey = "price"
)

// SortDirection orders listings; the values match MongoDB sort specs.
type SortDirection int

const (
	Ascending  SortDirection = 1
	Descending SortDirection = -1
)
