package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepo interface {
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessageByID(ctx context.Context, id string) (*Message, error)
	FindBetween(ctx context.Context, a, b uint64) ([]*Message, error)
	ExistsBetween(ctx context.Context, a, b uint64) (bool, error)
	DeleteMessage(ctx context.Context, id string) error
	MarkSeenFrom(ctx context.Context, senderID, receiverID uint64) (int64, error)
	ListChatPartners(ctx context.Context, userID uint64) ([]*ChatPartner, error)
}

type messageRepoImpl struct {
	col *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) MessageRepo {
	return &messageRepoImpl{
		col: db.Collection("message"),
	}
}

// betweenFilter 双向匹配一对用户
func betweenFilter(a, b uint64) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "receiver_id": b},
		bson.M{"sender_id": b, "receiver_id": a},
	}}
}

// SaveMessage 将消息存入 MongoDB，写入前即分配 ID 以便同步返回
func (s *messageRepoImpl) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = primitive.NewObjectID().Hex()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err := s.col.InsertOne(ctx, msg)
	return errors.Wrap(err, "insert message")
}

// GetMessageByID 精确查询
func (s *messageRepoImpl) GetMessageByID(ctx context.Context, id string) (*Message, error) {
	var msg Message
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find message by id")
	}
	return &msg, nil
}

// FindBetween 拉取一对用户之间的全部消息，按发送时间升序
func (s *messageRepoImpl) FindBetween(ctx context.Context, a, b uint64) ([]*Message, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.col.Find(ctx, betweenFilter(a, b), findOptions)
	if err != nil {
		return nil, errors.Wrap(err, "find messages between users")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var messages []*Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, errors.Wrap(err, "decode messages")
	}

	return messages, nil
}

// ExistsBetween 判断两人之间是否已有消息往来
func (s *messageRepoImpl) ExistsBetween(ctx context.Context, a, b uint64) (bool, error) {
	count, err := s.col.CountDocuments(ctx, betweenFilter(a, b), options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrap(err, "count messages between users")
	}
	return count > 0, nil
}

// DeleteMessage 硬删除，不留墓碑
func (s *messageRepoImpl) DeleteMessage(ctx context.Context, id string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	return errors.Wrap(err, "delete message")
}

// MarkSeenFrom 将 sender -> receiver 的全部未读消息置为已读
func (s *messageRepoImpl) MarkSeenFrom(ctx context.Context, senderID, receiverID uint64) (int64, error) {
	now := time.Now()
	res, err := s.col.UpdateMany(ctx,
		bson.M{"sender_id": senderID, "receiver_id": receiverID, "seen": false},
		bson.M{"$set": bson.M{"seen": true, "seen_at": now}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "mark messages seen")
	}
	return res.ModifiedCount, nil
}

// ListChatPartners 会话列表聚合：按对手方分组，取最后一条消息并统计未读
func (s *messageRepoImpl) ListChatPartners(ctx context.Context, userID uint64) ([]*ChatPartner, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"sender_id": userID},
			bson.M{"receiver_id": userID},
		}}}},
		bson.D{{Key: "$addFields", Value: bson.M{
			"partner": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$sender_id", userID}},
				"$receiver_id",
				"$sender_id",
			}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":          "$partner",
			"last_message": bson.M{"$first": "$$ROOT"},
			"unseen_count": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$receiver_id", userID}},
					bson.M{"$eq": bson.A{"$seen", false}},
				}},
				1,
				0,
			}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "last_message.created_at", Value: -1}}}},
	}

	cursor, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate chat partners")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var partners []*ChatPartner
	if err := cursor.All(ctx, &partners); err != nil {
		return nil, errors.Wrap(err, "decode chat partners")
	}
	return partners, nil
}
