package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository implements Repository on a MongoDB collection. Product
// documents use the product id as _id.
type MongoRepository struct {
	collection *mongo.Collection
}

// NewMongoRepository wraps the named collection.
func NewMongoRepository(client *mongo.Client, database, collection string) *MongoRepository {
	return &MongoRepository{collection: client.Database(database).Collection(collection)}
}

// EnsureIndexes creates the createdAt index used by listings.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("catalog: ensure indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) ListAll(ctx context.Context, sortKey SortKey, dir SortDirection) ([]Product, error) {
	field := string(SortByCreatedAt)
	if sortKey == SortByName || sortKey == SortByPrice {
		field = string(sortKey)
	}
	order := int(Descending)
	if dir == Ascending {
		order = int(Ascending)
	}
	opts := options.Find().SetSort(bson.D{{Key: field, Value: order}, {Key: "_id", Value: order}})

	cursor, err := r.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	products := []Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("catalog: decode products: %w", err)
	}
	for i := range products {
		normaliseStored(&products[i])
	}
	return products, nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (Product, error) {
	var p Product
	if err := r.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: get product: %w", err)
	}
	normaliseStored(&p)
	return p, nil
}

func (r *MongoRepository) Insert(ctx context.Context, product Product) (Product, error) {
	if product.Images == nil {
		product.Images = []string{}
	}
	if _, err := r.collection.InsertOne(ctx, product); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Product{}, ErrDuplicate
		}
		return Product{}, fmt.Errorf("catalog: insert product: %w", err)
	}
	return product, nil
}

func (r *MongoRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	res, err := r.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return 0, fmt.Errorf("catalog: delete product: %w", err)
	}
	return res.DeletedCount, nil
}

func normaliseStored(p *Product) {
	if p.Images == nil {
		p.Images = []string{}
	}
	p.CreatedAt = p.CreatedAt.UTC()
}

var _ Repository = (*MongoRepository)(nil)
