package catalog

import (
	"errors"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

type productForm struct {
	Name        string `form:"name" validate:"required,max=200"`
	Description string `form:"description" validate:"required,max=5000"`
	Category    string `form:"category" validate:"required,oneof='Travel Comfort' 'Home Essentials' 'Tech Accessories' 'Budget Finds'"`
	Price       string `form:"price" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("form")
	})
	return v
}

var categoryFolder = cases.Fold()

// canonicalCategory maps any casing of a known label onto the label itself.
func canonicalCategory(raw string) string {
	folded := categoryFolder.String(raw)
	for _, label := range Categories {
		if categoryFolder.String(label) == folded {
			return label
		}
	}
	return raw
}

func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// normalise validates in and returns the product fields it describes.
func (s *Service) normalise(in CreateProductInput) (Product, error) {
	form := productForm{
		Name:        cleanText(in.Name),
		Description: cleanText(in.Description),
		Category:    canonicalCategory(cleanText(in.Category)),
		Price:       strings.TrimSpace(in.Price),
	}

	fields := make(map[string]string)
	if err := s.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Product{}, err
		}
		for _, fe := range verrs {
			fields[fe.Field()] = describe(fe)
		}
	}

	var price int64
	if _, failed := fields["price"]; !failed {
		p, msg := parsePrice(form.Price)
		if msg != "" {
			fields["price"] = msg
		}
		price = p
	}

	if len(fields) > 0 {
		return Product{}, &ValidationError{Fields: fields}
	}
	return Product{
		Name:        form.Name,
		Price:       price,
		Description: form.Description,
		Category:    form.Category,
	}, nil
}

// parsePrice accepts decimal input and truncates toward zero.
func parsePrice(raw string) (int64, string) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, "must be a number"
	}
	f = math.Trunc(f)
	if f < 0 {
		return 0, "must not be negative"
	}
	if f >= math.MaxInt64 {
		return 0, "is too large"
	}
	return int64(f), ""
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + strings.Join(Categories, ", ")
	default:
		return "is invalid"
	}
}
