package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sumohast/meet-room/internal/domain"
)

// MongoGateway persists chat messages in a single collection, indexed by
// (room_id, created_at) so the recent-tail query stays cheap.
type MongoGateway struct {
	col *mongo.Collection
}

func NewMongoGateway(ctx context.Context, uri, database string) (*MongoGateway, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	col := client.Database(database).Collection("chat_messages")
	_, err = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongo index: %w", err)
	}
	return &MongoGateway{col: col}, nil
}

func (g *MongoGateway) AppendMessage(ctx context.Context, roomID string, user domain.User, body string) (*Record, error) {
	rec := &Record{
		RoomID:    roomID,
		UserID:    user.ID,
		Username:  user.Username,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	res, err := g.col.InsertOne(ctx, bson.M{
		"room_id":    rec.RoomID,
		"user_id":    rec.UserID,
		"username":   rec.Username,
		"body":       rec.Body,
		"created_at": rec.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		rec.ID = oid.Hex()
	}
	return rec, nil
}

func (g *MongoGateway) ListRecent(ctx context.Context, roomID string, limit int) ([]*Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := g.col.Find(ctx, bson.M{"room_id": roomID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cur.Close(ctx)

	var out []*Record
	for cur.Next(ctx) {
		var doc struct {
			ID        primitive.ObjectID `bson:"_id"`
			RoomID    string             `bson:"room_id"`
			UserID    domain.UserID      `bson:"user_id"`
			Username  string             `bson:"username"`
			Body      string             `bson:"body"`
			CreatedAt time.Time          `bson:"created_at"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, &Record{
			ID:        doc.ID.Hex(),
			RoomID:    doc.RoomID,
			UserID:    doc.UserID,
			Username:  doc.Username,
			Body:      doc.Body,
			CreatedAt: doc.CreatedAt,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	return out, nil
}
