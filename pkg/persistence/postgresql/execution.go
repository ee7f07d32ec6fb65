package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
	"github.com/dukex/flowstudio/pkg/persistence/sqlbase"
)

// ExecutionRepository handles execution, node execution and log rows.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const selectExecution = `
	SELECT
		id
	  , flow_id
	  , flow_version
	  , user_id
	  , status
	  , progress
	  , total_components
	  , completed_components
	  , execution_config
	  , flow_snapshot
	  , error_message
	  , error_details
	  , final_output
	  , execution_metrics
	  , started_at
	  , completed_at
	  , created_at
	  , updated_at
	FROM executions
`

func executionArgs(record *models.ExecutionRecord) ([]any, error) {
	jsonColumns := []any{record.ExecutionConfig, record.FlowSnapshot, record.ErrorDetails, record.FinalOutput, record.Metrics}
	encoded := make([]any, len(jsonColumns))

	for i, column := range jsonColumns {
		value, err := sqlbase.ToJSON(column)
		if err != nil {
			return nil, err
		}

		encoded[i] = value
	}

	return []any{
		record.ID, record.FlowID, record.FlowVersion, record.UserID, string(record.Status),
		record.Progress, record.TotalComponents, record.CompletedComponents,
		encoded[0], encoded[1], record.ErrorMessage, encoded[2], encoded[3], encoded[4],
		record.StartedAt, record.CompletedAt, record.CreatedAt, record.UpdatedAt,
	}, nil
}

func (r *ExecutionRepository) CreateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	args, err := executionArgs(record)
	if err != nil {
		return persistence.NewExecutionError("CreateExecution", record.ID, err)
	}

	query := `
		INSERT INTO executions (
			id, flow_id, flow_version, user_id, status, progress, total_components, completed_components,
			execution_config, flow_snapshot, error_message, error_details, final_output, execution_metrics,
			started_at, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = r.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return persistence.NewExecutionError("CreateExecution", record.ID, persistence.ErrAlreadyExists)
	}

	if err != nil {
		return persistence.NewExecutionError("CreateExecution", record.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) UpdateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	args, err := executionArgs(record)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecution", record.ID, err)
	}

	query := `
		UPDATE executions SET
			flow_id = $2
		  , flow_version = $3
		  , user_id = $4
		  , status = $5
		  , progress = $6
		  , total_components = $7
		  , completed_components = $8
		  , execution_config = $9
		  , flow_snapshot = $10
		  , error_message = $11
		  , error_details = $12
		  , final_output = $13
		  , execution_metrics = $14
		  , started_at = $15
		  , completed_at = $16
		  , created_at = $17
		  , updated_at = $18
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecution", record.ID, err)
	}

	return expectOne(result, persistence.NewExecutionError("UpdateExecution", record.ID, persistence.ErrExecutionNotFound))
}

func (r *ExecutionRepository) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	record, err := scanExecution(r.db.QueryRowContext(ctx, selectExecution+" WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("GetExecution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return record, nil
}

func (r *ExecutionRepository) ListExecutions(ctx context.Context, flowID string) ([]*models.ExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectExecution+" WHERE flow_id = $1 ORDER BY created_at DESC", flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.ExecutionRecord, 0)

	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

func scanExecution(row scanner) (*models.ExecutionRecord, error) {
	var (
		record                                      models.ExecutionRecord
		status                                      string
		config, snapshot, details, output, metrics []byte
		startedAt, completedAt                      sql.NullTime
	)

	err := row.Scan(
		&record.ID, &record.FlowID, &record.FlowVersion, &record.UserID, &status,
		&record.Progress, &record.TotalComponents, &record.CompletedComponents,
		&config, &snapshot, &record.ErrorMessage, &details, &output, &metrics,
		&startedAt, &completedAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.ExecutionStatus(status)
	record.StartedAt = nullTime(startedAt)
	record.CompletedAt = nullTime(completedAt)
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()

	for _, column := range []struct {
		data   []byte
		target any
	}{
		{config, &record.ExecutionConfig},
		{snapshot, &record.FlowSnapshot},
		{details, &record.ErrorDetails},
		{output, &record.FinalOutput},
		{metrics, &record.Metrics},
	} {
		err = sqlbase.FromJSON(column.data, column.target)
		if err != nil {
			return nil, err
		}
	}

	return &record, nil
}

func (r *ExecutionRepository) CreateNodeExecutions(ctx context.Context, records []*models.NodeExecutionRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `
		INSERT INTO node_executions (
			id, execution_id, node_id, component_type, execution_order, status,
			config_snapshot, input_snapshot, output_snapshot, execution_time_ms,
			cost_estimate, error_message, error_details, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	for _, record := range records {
		args, err := nodeExecutionArgs(record)
		if err != nil {
			_ = tx.Rollback()

			return err
		}

		_, err = tx.ExecContext(ctx, query, args...)
		if err != nil {
			_ = tx.Rollback()

			return persistence.NewExecutionError("CreateNodeExecutions", record.ExecutionID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit node executions: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) UpdateNodeExecution(ctx context.Context, record *models.NodeExecutionRecord) error {
	args, err := nodeExecutionArgs(record)
	if err != nil {
		return err
	}

	query := `
		UPDATE node_executions SET
			execution_id = $2
		  , node_id = $3
		  , component_type = $4
		  , execution_order = $5
		  , status = $6
		  , config_snapshot = $7
		  , input_snapshot = $8
		  , output_snapshot = $9
		  , execution_time_ms = $10
		  , cost_estimate = $11
		  , error_message = $12
		  , error_details = $13
		  , started_at = $14
		  , completed_at = $15
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence.NewExecutionError("UpdateNodeExecution", record.ExecutionID, err)
	}

	return expectOne(result, persistence.NewExecutionError("UpdateNodeExecution", record.ExecutionID, persistence.ErrNodeExecutionNotFound))
}

func (r *ExecutionRepository) NodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecutionRecord, error) {
	query := `
		SELECT
			id
		  , execution_id
		  , node_id
		  , component_type
		  , execution_order
		  , status
		  , config_snapshot
		  , input_snapshot
		  , output_snapshot
		  , execution_time_ms
		  , cost_estimate
		  , error_message
		  , error_details
		  , started_at
		  , completed_at
		FROM node_executions
		WHERE execution_id = $1
		ORDER BY execution_order ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node executions: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.NodeExecutionRecord, 0)

	for rows.Next() {
		var (
			record                                  models.NodeExecutionRecord
			status                                  string
			config, input, output, cost, errDetails []byte
			startedAt, completedAt                  sql.NullTime
		)

		err := rows.Scan(
			&record.ID, &record.ExecutionID, &record.NodeID, &record.ComponentType, &record.ExecutionOrder, &status,
			&config, &input, &output, &record.ExecutionTimeMs,
			&cost, &record.ErrorMessage, &errDetails, &startedAt, &completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node execution: %w", err)
		}

		record.Status = models.NodeStatus(status)
		record.StartedAt = nullTime(startedAt)
		record.CompletedAt = nullTime(completedAt)

		for _, column := range []struct {
			data   []byte
			target any
		}{
			{config, &record.ConfigSnapshot},
			{input, &record.InputSnapshot},
			{output, &record.OutputSnapshot},
			{cost, &record.CostEstimate},
			{errDetails, &record.ErrorDetails},
		} {
			err = sqlbase.FromJSON(column.data, column.target)
			if err != nil {
				return nil, err
			}
		}

		records = append(records, &record)
	}

	return records, rows.Err()
}

func nodeExecutionArgs(record *models.NodeExecutionRecord) ([]any, error) {
	jsonColumns := []any{record.ConfigSnapshot, record.InputSnapshot, record.OutputSnapshot, record.CostEstimate, record.ErrorDetails}
	encoded := make([]any, len(jsonColumns))

	for i, column := range jsonColumns {
		value, err := sqlbase.ToJSON(column)
		if err != nil {
			return nil, err
		}

		encoded[i] = value
	}

	return []any{
		record.ID, record.ExecutionID, record.NodeID, record.ComponentType, record.ExecutionOrder, string(record.Status),
		encoded[0], encoded[1], encoded[2], record.ExecutionTimeMs,
		encoded[3], record.ErrorMessage, encoded[4], record.StartedAt, record.CompletedAt,
	}, nil
}

func (r *ExecutionRepository) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	details, err := sqlbase.ToJSON(entry.Details)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO execution_logs (id, execution_id, node_execution_id, level, message, details, source, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.ExecutionID, entry.NodeExecutionID, string(entry.Level),
		entry.Message, details, entry.Source, entry.Timestamp,
	)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, err)
	}

	return nil
}

func (r *ExecutionRepository) Logs(ctx context.Context, executionID string) ([]*models.LogEntry, error) {
	query := `
		SELECT id, execution_id, node_execution_id, level, message, details, source, logged_at
		FROM execution_logs
		WHERE execution_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	entries := make([]*models.LogEntry, 0)

	for rows.Next() {
		var (
			entry   models.LogEntry
			level   string
			details []byte
		)

		err := rows.Scan(&entry.ID, &entry.ExecutionID, &entry.NodeExecutionID, &level,
			&entry.Message, &details, &entry.Source, &entry.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		entry.Level = models.LogLevel(level)
		entry.Timestamp = entry.Timestamp.UTC()

		err = sqlbase.FromJSON(details, &entry.Details)
		if err != nil {
			return nil, err
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func expectOne(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return notFound
	}

	return nil
}
