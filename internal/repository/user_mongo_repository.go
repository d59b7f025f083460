package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/prperemyshlev/portfolio-backend/internal/domain"
	"github.com/prperemyshlev/portfolio-backend/pkg/database"
)

const userCollection = "users"

// userDocument is the MongoDB shape of a user
type userDocument struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Username     string        `bson:"username"`
	Email        string        `bson:"email"`
	Fullname     string        `bson:"fullname"`
	PasswordHash string        `bson:"password_hash"`
	RefreshToken *string       `bson:"refresh_token"`
	Verification bool          `bson:"verification"`
	CreatedAt    time.Time     `bson:"created_at"`
	UpdatedAt    time.Time     `bson:"updated_at"`
}

func (d *userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		Fullname:     d.Fullname,
		PasswordHash: d.PasswordHash,
		RefreshToken: d.RefreshToken,
		Verification: d.Verification,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// userMongoRepository implements UserRepository on MongoDB
type userMongoRepository struct {
	collection *mongo.Collection
}

// NewUserMongoRepository creates the repository and ensures the unique indexes exist
func NewUserMongoRepository(ctx context.Context, db *database.Mongo) (UserRepository, error) {
	collection := db.Database.Collection(userCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create user indexes: %w", err)
	}

	return &userMongoRepository{collection: collection}, nil
}

func (r *userMongoRepository) Create(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	doc := userDocument{
		Username:     user.Username,
		Email:        user.Email,
		Fullname:     user.Fullname,
		PasswordHash: user.PasswordHash,
		RefreshToken: user.RefreshToken,
		Verification: user.Verification,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}

	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("user %s/%s: %w", user.Username, user.Email, ErrDuplicateUser)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	objectID, ok := result.InsertedID.(bson.ObjectID)
	if !ok {
		return errors.New("failed to convert inserted ID to ObjectID")
	}
	user.ID = objectID.Hex()

	return nil
}

func (r *userMongoRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}
	return r.findOne(ctx, bson.M{"_id": objectID})
}

func (r *userMongoRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *userMongoRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *userMongoRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"username": username},
		bson.M{"email": email},
	}})
}

func (r *userMongoRepository) MarkVerified(ctx context.Context, id string) error {
	return r.updateOne(ctx, id, bson.M{}, bson.M{"verification": true})
}

func (r *userMongoRepository) UpdateUsername(ctx context.Context, id, username string) (*domain.User, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	result := r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"username": username, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var doc userDocument
	if err := result.Decode(&doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("username %s: %w", username, ErrDuplicateUser)
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update username of user %s: %w", id, err)
	}

	return doc.toDomain(), nil
}

func (r *userMongoRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.updateOne(ctx, id, bson.M{}, bson.M{"password_hash": passwordHash, "refresh_token": nil})
}

func (r *userMongoRepository) SetRefreshToken(ctx context.Context, id string, token *string) error {
	return r.updateOne(ctx, id, bson.M{}, bson.M{"refresh_token": token})
}

func (r *userMongoRepository) SwapRefreshToken(ctx context.Context, id, current, next string) error {
	err := r.updateOne(ctx, id, bson.M{"refresh_token": current}, bson.M{"refresh_token": next})
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("user %s: %w", id, ErrRefreshTokenMismatch)
	}
	return err
}

func (r *userMongoRepository) Delete(ctx context.Context, id string) error {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	return nil
}

func (r *userMongoRepository) DeleteUnverified(ctx context.Context, id string) (bool, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID, "verification": false})
	if err != nil {
		return false, fmt.Errorf("failed to delete unverified user: %w", err)
	}

	return result.DeletedCount > 0, nil
}

func (r *userMongoRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return doc.toDomain(), nil
}

// updateOne applies set to the user matching id and extra filter conditions
func (r *userMongoRepository) updateOne(ctx context.Context, id string, filter, set bson.M) error {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	filter["_id"] = objectID
	set["updated_at"] = time.Now().UTC()

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("user %s: %w", id, ErrDuplicateUser)
		}
		return fmt.Errorf("failed to update user %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	return nil
}
