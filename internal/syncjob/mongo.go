package syncjob

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/parcelaid/backend/internal/model"
)

// MongoTarget writes each collection into the MongoDB collection of the same name.
type MongoTarget struct {
	client *mongo.Client
	db     *mongo.Database
}

// serverSelectionTimeout はサーバ未到達時に 1 操作が待つ上限。
// 到達できない間は Exists がこの時間で失敗し、そのコレクションは次の実行で再試行される。
const serverSelectionTimeout = 10 * time.Second

// NewMongoTarget はクライアントを生成する。mongo.Connect は接続を張らないので、
// 起動時にサーバが落ちていても失敗しない（URI の形式エラーのみ返す）。
// 到達性は Ping か各実行の Exists/Insert で分かる。
func NewMongoTarget(ctx context.Context, uri, database string) (*MongoTarget, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(serverSelectionTimeout))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return &MongoTarget{client: client, db: client.Database(database)}, nil
}

// Ping はプライマリへの到達性を確認する。失敗してもターゲットは使い続けてよい。
func (t *MongoTarget) Ping(ctx context.Context) error {
	return t.client.Ping(ctx, readpref.Primary())
}

var _ Target = (*MongoTarget)(nil)

func keyFilter(key model.Key) bson.D {
	filter := make(bson.D, 0, len(key))
	for _, f := range key {
		filter = append(filter, bson.E{Key: f.Name, Value: f.Value})
	}
	return filter
}

func (t *MongoTarget) Exists(ctx context.Context, c model.Collection, key model.Key) (bool, error) {
	n, err := t.db.Collection(string(c)).CountDocuments(ctx, keyFilter(key), options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *MongoTarget) Insert(ctx context.Context, c model.Collection, _ model.Key, doc map[string]any) error {
	_, err := t.db.Collection(string(c)).InsertOne(ctx, bson.M(doc))
	return err
}

func (t *MongoTarget) Close(ctx context.Context) error {
	return t.client.Disconnect(ctx)
}
