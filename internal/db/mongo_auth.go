package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jobboard/backend/internal/model"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type profileDoc struct {
	FullName    string   `bson:"full_name"`
	PhoneNumber string   `bson:"phone_number"`
	Bio         string   `bson:"bio"`
	Skills      []string `bson:"skills"`
	ResumeURL   string   `bson:"resume_url"`
}

type userDoc struct {
	ID           bson.ObjectID  `bson:"_id"`
	Username     string         `bson:"username"`
	Email        string         `bson:"email"`
	PasswordHash string         `bson:"password_hash"`
	Role         string         `bson:"role"`
	CompanyID    *bson.ObjectID `bson:"company_id,omitempty"`
	Profile      profileDoc     `bson:"profile"`
	CreatedAt    time.Time      `bson:"created_at"`
	UpdatedAt    time.Time      `bson:"updated_at"`
}

type tokenDoc struct {
	UserID       bson.ObjectID `bson:"user_id"`
	AccessToken  string        `bson:"access_token,omitempty"`
	RefreshToken string        `bson:"refresh_token"`
	IssuedAt     time.Time     `bson:"issued_at"`
	ExpiresAt    time.Time     `bson:"expires_at"`
}

type loginDoc struct {
	ID        bson.ObjectID `bson:"_id"`
	UserID    bson.ObjectID `bson:"user_id"`
	LoginAt   time.Time     `bson:"login_at"`
	IPAddress string        `bson:"ip_address"`
}

func (d userDoc) toModel() *model.User {
	u := &model.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         d.Role,
		Profile: model.Profile{
			FullName:    d.Profile.FullName,
			PhoneNumber: d.Profile.PhoneNumber,
			Bio:         d.Profile.Bio,
			Skills:      d.Profile.Skills,
			ResumeURL:   d.Profile.ResumeURL,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.CompanyID != nil {
		u.CompanyID = d.CompanyID.Hex()
	}
	return u
}

func (d tokenDoc) toModel() *model.TokenRecord {
	return &model.TokenRecord{
		UserID:       d.UserID.Hex(),
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		IssuedAt:     d.IssuedAt,
		ExpiresAt:    d.ExpiresAt,
	}
}

type companyDoc struct {
	ID          bson.ObjectID `bson:"_id"`
	CompanyName string        `bson:"company_name"`
}

func (m *Mongo) CreateCompany(ctx context.Context, name string) (string, error) {
	const op = "storage.mongodb.CreateCompany"

	doc := companyDoc{ID: bson.NewObjectID(), CompanyName: name}
	if _, err := m.companies.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return doc.ID.Hex(), nil
}

func (m *Mongo) CompanyExists(ctx context.Context, companyID string) (bool, error) {
	const op = "storage.mongodb.CompanyExists"

	id, err := bson.ObjectIDFromHex(companyID)
	if err != nil {
		return false, nil
	}

	n, err := m.companies.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

func (m *Mongo) CreateUser(ctx context.Context, user model.User) (*model.User, error) {
	const op = "storage.mongodb.CreateUser"

	now := time.Now().UTC()
	doc := userDoc{
		ID:           bson.NewObjectID(),
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
		Profile: profileDoc{
			FullName:    user.Profile.FullName,
			PhoneNumber: user.Profile.PhoneNumber,
			Bio:         user.Profile.Bio,
			Skills:      user.Profile.Skills,
			ResumeURL:   user.Profile.ResumeURL,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if doc.Profile.Skills == nil {
		doc.Profile.Skills = []string{}
	}
	if user.CompanyID != "" {
		companyID, err := bson.ObjectIDFromHex(user.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, ErrCompanyNotFound)
		}
		doc.CompanyID = &companyID
	}

	if _, err := m.users.InsertOne(ctx, doc); err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return doc.toModel(), nil
}

func (m *Mongo) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	const op = "storage.mongodb.UserByEmail"

	return m.findUser(ctx, op, bson.D{{Key: "email", Value: email}})
}

func (m *Mongo) UserByID(ctx context.Context, userID string) (*model.User, error) {
	const op = "storage.mongodb.UserByID"

	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return m.findUser(ctx, op, bson.D{{Key: "_id", Value: id}})
}

func (m *Mongo) findUser(ctx context.Context, op string, filter bson.D) (*model.User, error) {
	var doc userDoc
	if err := m.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toModel(), nil
}

func (m *Mongo) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	const op = "storage.mongodb.UpdatePasswordHash"

	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	res, err := m.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: passwordHash},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

func (m *Mongo) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	const op = "storage.mongodb.UpdateProfile"

	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	set := bson.D{{Key: "updated_at", Value: time.Now().UTC()}}
	if update.FullName != nil {
		set = append(set, bson.E{Key: "profile.full_name", Value: *update.FullName})
	}
	if update.PhoneNumber != nil {
		set = append(set, bson.E{Key: "profile.phone_number", Value: *update.PhoneNumber})
	}
	if update.Bio != nil {
		set = append(set, bson.E{Key: "profile.bio", Value: *update.Bio})
	}
	if update.Skills != nil {
		set = append(set, bson.E{Key: "profile.skills", Value: *update.Skills})
	}
	if update.ResumeURL != nil {
		set = append(set, bson.E{Key: "profile.resume_url", Value: *update.ResumeURL})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc userDoc
	err = m.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
		opts,
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toModel(), nil
}

func (m *Mongo) DeleteUser(ctx context.Context, userID string) error {
	const op = "storage.mongodb.DeleteUser"

	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	res, err := m.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// UpsertToken overwrites the user's record in place or creates it.
func (m *Mongo) UpsertToken(ctx context.Context, record model.TokenRecord) error {
	const op = "storage.mongodb.UpsertToken"

	userID, err := bson.ObjectIDFromHex(record.UserID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	filter := bson.D{{Key: "user_id", Value: userID}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "access_token", Value: record.AccessToken},
		{Key: "refresh_token", Value: record.RefreshToken},
		{Key: "issued_at", Value: record.IssuedAt},
		{Key: "expires_at", Value: record.ExpiresAt},
	}}}
	opts := options.UpdateOne().SetUpsert(true)

	_, err = m.tokens.UpdateOne(ctx, filter, update, opts)
	if err != nil && isDuplicateKeyError(err) {
		// two concurrent upserts both tried to insert; the second now matches
		_, err = m.tokens.UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (m *Mongo) TokenByRefresh(ctx context.Context, refreshToken string) (*model.TokenRecord, error) {
	const op = "storage.mongodb.TokenByRefresh"

	return m.findToken(ctx, op, bson.D{{Key: "refresh_token", Value: refreshToken}})
}

func (m *Mongo) TokenByUserID(ctx context.Context, userID string) (*model.TokenRecord, error) {
	const op = "storage.mongodb.TokenByUserID"

	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}
	return m.findToken(ctx, op, bson.D{{Key: "user_id", Value: id}})
}

func (m *Mongo) findToken(ctx context.Context, op string, filter bson.D) (*model.TokenRecord, error) {
	var doc tokenDoc
	if err := m.tokens.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toModel(), nil
}

// UpdateAccessToken sets access_token only. The record must still hold the
// refresh token it was read with.
func (m *Mongo) UpdateAccessToken(ctx context.Context, record model.TokenRecord, accessToken string) error {
	const op = "storage.mongodb.UpdateAccessToken"

	userID, err := bson.ObjectIDFromHex(record.UserID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}

	res, err := m.tokens.UpdateOne(ctx,
		bson.D{
			{Key: "user_id", Value: userID},
			{Key: "refresh_token", Value: record.RefreshToken},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "access_token", Value: accessToken}}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}
	return nil
}

func (m *Mongo) DeleteTokenByRefresh(ctx context.Context, refreshToken string) error {
	const op = "storage.mongodb.DeleteTokenByRefresh"

	res, err := m.tokens.DeleteOne(ctx, bson.D{{Key: "refresh_token", Value: refreshToken}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}
	return nil
}

func (m *Mongo) DeleteTokenByUserID(ctx context.Context, userID string) error {
	const op = "storage.mongodb.DeleteTokenByUserID"

	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}
	if _, err := m.tokens.DeleteOne(ctx, bson.D{{Key: "user_id", Value: id}}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (m *Mongo) AppendLogin(ctx context.Context, event model.LoginEvent) error {
	const op = "storage.mongodb.AppendLogin"

	userID, err := bson.ObjectIDFromHex(event.UserID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	doc := loginDoc{
		ID:        bson.NewObjectID(),
		UserID:    userID,
		LoginAt:   event.LoginAt,
		IPAddress: event.IPAddress,
	}
	if _, err := m.logins.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (m *Mongo) ListLogins(ctx context.Context, userID string, limit int) ([]model.LoginEvent, error) {
	const op = "storage.mongodb.ListLogins"

	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return []model.LoginEvent{}, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "login_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := m.logins.Find(ctx, bson.D{{Key: "user_id", Value: id}}, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var docs []loginDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	events := make([]model.LoginEvent, 0, len(docs))
	for _, d := range docs {
		events = append(events, model.LoginEvent{
			ID:        d.ID.Hex(),
			UserID:    d.UserID.Hex(),
			LoginAt:   d.LoginAt,
			IPAddress: d.IPAddress,
		})
	}
	return events, nil
}
