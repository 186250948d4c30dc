package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TaskStatus is the lifecycle state of an async backtest run (spec §6's
// "async task status" surface).
type TaskStatus string

const (
	TaskQueued    TaskStatus = "QUEUED"
	TaskRunning   TaskStatus = "RUNNING"
	TaskSucceeded TaskStatus = "SUCCEEDED"
	TaskFailed    TaskStatus = "FAILED"
	TaskCancelled TaskStatus = "CANCELLED"
)

// Task is one submitted backtest/simulation run.
type Task struct {
	TaskID      string
	UserID      string
	Status      TaskStatus
	RequestJSON string
	ResultJSON  string
	Cancelled   bool
}

// TaskRepository persists async backtest task state. There is no ports
// interface for this because it is consumed directly by internal/api,
// not by the core trading loop.
type TaskRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTaskRepository builds a TaskRepository.
func NewTaskRepository(db *gorm.DB, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

func (r *TaskRepository) Create(ctx context.Context, t Task) error {
	m := SimulationTaskModel{
		TaskID:      t.TaskID,
		UserID:      t.UserID,
		Status:      string(t.Status),
		RequestJSON: t.RequestJSON,
		ResultJSON:  t.ResultJSON,
		Cancelled:   t.Cancelled,
	}
	result := r.db.WithContext(ctx).Create(&m)
	if result.Error != nil {
		r.logger.Error("failed to create task", zap.String("task_id", t.TaskID), zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, taskID string, status TaskStatus, resultJSON string) error {
	result := r.db.WithContext(ctx).
		Model(&SimulationTaskModel{}).
		Where("task_id = ?", taskID).
		Updates(map[string]interface{}{"status": string(status), "result_json": resultJSON})
	if result.Error != nil {
		r.logger.Error("failed to update task status", zap.String("task_id", taskID), zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *TaskRepository) Cancel(ctx context.Context, taskID string) error {
	result := r.db.WithContext(ctx).
		Model(&SimulationTaskModel{}).
		Where("task_id = ?", taskID).
		Updates(map[string]interface{}{"cancelled": true, "status": string(TaskCancelled)})
	if result.Error != nil {
		r.logger.Error("failed to cancel task", zap.String("task_id", taskID), zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, taskID string) (Task, bool, error) {
	var m SimulationTaskModel
	result := r.db.WithContext(ctx).Where("task_id = ?", taskID).First(&m)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return Task{}, false, nil
	}
	if result.Error != nil {
		r.logger.Error("failed to get task", zap.String("task_id", taskID), zap.Error(result.Error))
		return Task{}, false, result.Error
	}
	return Task{
		TaskID:      m.TaskID,
		UserID:      m.UserID,
		Status:      TaskStatus(m.Status),
		RequestJSON: m.RequestJSON,
		ResultJSON:  m.ResultJSON,
		Cancelled:   m.Cancelled,
	}, true, nil
}
