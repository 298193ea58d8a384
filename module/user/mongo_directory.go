package user

import (
	"PShare/module/chat/model"
	"PShare/tools/errs"
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const UserTableName = "users"

// MongoDirectory reads the account service's users collection. Account ids
// are ObjectIDs rendered as hex; other string ids are matched verbatim.
type MongoDirectory struct {
	coll *mongo.Collection
}

func NewMongoDirectory(db *mongo.Database) *MongoDirectory {
	return &MongoDirectory{coll: db.Collection(UserTableName)}
}

type userDoc struct {
	ID             any    `bson:"_id"`
	Name           string `bson:"name"`
	UserName       string `bson:"userName"`
	ProfilePicture string `bson:"profilePicture"`
}

func (d *MongoDirectory) Lookup(ctx context.Context, userID string) (*model.UserSummary, error) {
	var key any = userID
	if oid, err := primitive.ObjectIDFromHex(userID); err == nil {
		key = oid
	}
	var doc userDoc
	err := d.coll.FindOne(ctx, bson.M{"_id": key},
		options.FindOne().SetProjection(bson.M{"name": 1, "userName": 1, "profilePicture": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound.WrapMsg("user", "id", userID)
	}
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg(err.Error())
	}
	return &model.UserSummary{
		ID:             userID,
		Name:           doc.Name,
		UserName:       doc.UserName,
		ProfilePicture: doc.ProfilePicture,
	}, nil
}
