package message

import (
	"PShare/module/chat/model"
	"PShare/tools/errs"
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists messages in one collection, indexed for room history
// and recipient unread scans.
type MongoStore struct {
	MsgColl *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{MsgColl: db.Collection(model.Message{}.TableName())}
}

// EnsureIndexes creates {roomId, createdAt, _id} and {to, read, roomId}.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.MsgColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "to", Value: 1}, {Key: "read", Value: 1}, {Key: "roomId", Value: 1}}},
		{Keys: bson.D{{Key: "from", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	return err
}

func (s *MongoStore) Insert(ctx context.Context, m *model.Message) error {
	_, err := s.MsgColl.InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateID.WrapMsg("", "id", m.ID)
	}
	return err
}

func (s *MongoStore) Get(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := s.MsgColl.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound.WrapMsg("message", "id", id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MongoStore) ListRoom(ctx context.Context, roomID string, limit int) ([]*model.Message, error) {
	opts := options.Find()
	if limit > 0 {
		// newest first, then flip
		opts.SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).SetLimit(int64(limit))
	} else {
		opts.SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	}
	cur, err := s.MsgColl.Find(ctx, bson.M{"roomId": roomID}, opts)
	if err != nil {
		return nil, err
	}
	var out []*model.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	if limit > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (s *MongoStore) LastPerRoom(ctx context.Context, userID string) ([]*model.Message, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{bson.M{"from": userID}, bson.M{"to": userID}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.M{"_id": "$roomId", "doc": bson.M{"$first": "$$ROOT"}}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$doc"}}},
	}
	cur, err := s.MsgColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var out []*model.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) UnreadByRoom(ctx context.Context, userID string) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"to": userID, "read": false}}},
		{{Key: "$group", Value: bson.M{"_id": "$roomId", "n": bson.M{"$sum": 1}}}},
	}
	cur, err := s.MsgColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		RoomID string `bson:"_id"`
		N      int64  `bson:"n"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.RoomID] = r.N
	}
	return out, nil
}

func (s *MongoStore) MarkRoomRead(ctx context.Context, roomID, recipientID string) (int64, error) {
	res, err := s.MsgColl.UpdateMany(ctx,
		bson.M{"roomId": roomID, "to": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) MarkOneRead(ctx context.Context, id, recipientID string) (bool, error) {
	res, err := s.MsgColl.UpdateOne(ctx,
		bson.M{"_id": id, "to": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return false, err
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	// nothing changed: already read, someone else's message, or missing
	m, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if m.To != recipientID {
		return false, errs.ErrAuthorization.WrapMsg("not the recipient", "messageId", id)
	}
	return false, nil
}
