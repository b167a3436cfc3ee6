package store

import (
	"DayPilot/backend/go/internal/models"
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoJournal 把执行日志和冲突解决日志分别写入两个集合。
type MongoJournal struct {
	executions  *mongo.Collection
	resolutions *mongo.Collection
}

// NewMongoJournal 创建一个 MongoJournal。
func NewMongoJournal(db *mongo.Database, executionCollection, resolutionCollection string) *MongoJournal {
	return &MongoJournal{
		executions:  db.Collection(executionCollection),
		resolutions: db.Collection(resolutionCollection),
	}
}

// AppendExecution 插入一条执行记录。
func (j *MongoJournal) AppendExecution(ctx context.Context, record models.AgentRunRecord) error {
	_, err := j.executions.InsertOne(ctx, record)
	return err
}

// AppendResolution 插入一条冲突解决记录。
func (j *MongoJournal) AppendResolution(ctx context.Context, entry models.ResolutionLogEntry) error {
	_, err := j.resolutions.InsertOne(ctx, entry)
	return err
}
