package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/models"
	"github.com/google/uuid"
)

// TodoRepository handles todo database operations
type TodoRepository struct {
	db *DB
}

// NewTodoRepository creates a new todo repository
func NewTodoRepository(db *DB) *TodoRepository {
	return &TodoRepository{db: db}
}

const todoColumns = `id, user_id, topic, subtasks, date, day, completed, created_at, updated_at`

// Create creates a new todo
func (r *TodoRepository) Create(ctx context.Context, todo *models.Todo) error {
	if todo.ID == uuid.Nil {
		todo.ID = uuid.New()
	}
	if todo.Subtasks == nil {
		todo.Subtasks = models.Subtasks{}
	}

	subtasksJSON, err := json.Marshal(todo.Subtasks)
	if err != nil {
		return fmt.Errorf("failed to marshal subtasks: %w", err)
	}

	query := `
		INSERT INTO todos (` + todoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := time.Now().UTC()
	// Subtasks go over the wire as text so lib/pq does not send them as bytea.
	_, err = r.db.ExecContext(ctx, query,
		todo.ID,
		todo.UserID,
		todo.Topic,
		string(subtasksJSON),
		toMillis(todo.Date),
		todo.Day,
		todo.Completed,
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create todo: %w", err)
	}

	todo.CreatedAt = now
	todo.UpdatedAt = now
	return nil
}

// ListByDateRange returns every todo whose date falls in [start, end), across all users,
// ordered by owner and date
func (r *TodoRepository) ListByDateRange(ctx context.Context, start, end time.Time) ([]*models.Todo, error) {
	query := `
		SELECT ` + todoColumns + `
		FROM todos
		WHERE date >= $1 AND date < $2
		ORDER BY user_id, date, created_at
	`
	return r.list(ctx, query, toMillis(start), toMillis(end))
}

// ListByUserAndDateRange returns one user's todos whose date falls in [start, end)
func (r *TodoRepository) ListByUserAndDateRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*models.Todo, error) {
	query := `
		SELECT ` + todoColumns + `
		FROM todos
		WHERE user_id = $1 AND date >= $2 AND date < $3
		ORDER BY date, created_at
	`
	return r.list(ctx, query, userID, toMillis(start), toMillis(end))
}

func (r *TodoRepository) list(ctx context.Context, query string, args ...any) ([]*models.Todo, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query todos: %w", err)
	}
	defer closeRows(rows)

	var todos []*models.Todo
	for rows.Next() {
		todo := &models.Todo{}
		var subtasksJSON []byte
		var date, createdAt, updatedAt int64

		err := rows.Scan(
			&todo.ID,
			&todo.UserID,
			&todo.Topic,
			&subtasksJSON,
			&date,
			&todo.Day,
			&todo.Completed,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}

		subtasks, err := models.ParseSubtasks(subtasksJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal subtasks for todo %s: %w", todo.ID, err)
		}
		todo.Subtasks = subtasks
		todo.Date = fromMillis(date)
		todo.CreatedAt = fromMillis(createdAt)
		todo.UpdatedAt = fromMillis(updatedAt)

		todos = append(todos, todo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating todos: %w", err)
	}

	return todos, nil
}
