package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pavelanni/essayeval/internal/model"
)

// evaluationDoc is the stored document. Listing fields are kept at the top
// level so filters and summaries never decode the full result.
type evaluationDoc struct {
	ID           string                 `bson:"_id"`
	ExamType     string                 `bson:"examType"`
	Subject      string                 `bson:"subject"`
	QuestionText string                 `bson:"questionText"`
	OverallScore int                    `bson:"overallScore"`
	CreatedAt    time.Time              `bson:"createdAt"`
	Result       model.EvaluationResult `bson:"result"`
}

// Mongo is the MongoDB result store.
type Mongo struct {
	client      *mongo.Client
	evaluations *mongo.Collection
}

// NewMongo connects to uri and uses the evaluations collection of database.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	m := &Mongo{client: client, evaluations: client.Database(database).Collection("evaluations")}
	_, err = m.evaluations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "examType", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create index: %w", err)
	}
	return m, nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *Mongo) Save(ctx context.Context, questionText string, r *model.EvaluationResult) error {
	doc := evaluationDoc{
		ID:           r.ID,
		ExamType:     r.ExamType,
		Subject:      r.Subject,
		QuestionText: questionText,
		OverallScore: r.OverallScore,
		CreatedAt:    r.CreatedAt.UTC(),
		Result:       *r,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.evaluations.ReplaceOne(ctx, bson.M{"_id": r.ID}, doc, opts); err != nil {
		return fmt.Errorf("save evaluation %s: %w", r.ID, err)
	}
	return nil
}

func (m *Mongo) Get(ctx context.Context, id string) (*model.EvaluationResult, error) {
	var doc evaluationDoc
	err := m.evaluations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc.Result, nil
}

func mongoFilter(f model.HistoryFilter) bson.M {
	filter := bson.M{}
	if f.ExamType != "" {
		filter["examType"] = f.ExamType
	}
	if f.Subject != "" {
		filter["subject"] = f.Subject
	}
	return filter
}

func findOptions(f model.HistoryFilter) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(clampLimit(f.Limit)))
}

func (m *Mongo) List(ctx context.Context, f model.HistoryFilter) ([]model.EvaluationSummary, error) {
	opts := findOptions(f).SetProjection(bson.M{"result": 0})
	cursor, err := m.evaluations.Find(ctx, mongoFilter(f), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	summaries := []model.EvaluationSummary{}
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].CreatedAt = summaries[i].CreatedAt.UTC()
	}
	return summaries, nil
}

func (m *Mongo) Results(ctx context.Context, f model.HistoryFilter) ([]model.EvaluationResult, error) {
	cursor, err := m.evaluations.Find(ctx, mongoFilter(f), findOptions(f))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []evaluationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	results := make([]model.EvaluationResult, 0, len(docs))
	for _, d := range docs {
		results = append(results, d.Result)
	}
	return results, nil
}

func (m *Mongo) AverageScore(ctx context.Context, examType string) (float64, int, error) {
	pipeline := mongo.Pipeline{}
	if examType != "" {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"examType": examType}}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$group", Value: bson.M{
		"_id": nil,
		"avg": bson.M{"$avg": "$overallScore"},
		"n":   bson.M{"$sum": 1},
	}}})

	cursor, err := m.evaluations.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, fmt.Errorf("average score: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Avg float64 `bson:"avg"`
		N   int     `bson:"n"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, 0, fmt.Errorf("average score: %w", err)
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return rows[0].Avg, rows[0].N, nil
}
