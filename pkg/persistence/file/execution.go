package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
)

const (
	executionFile = "execution.json"
	nodesFile     = "nodes.json"
	logsFile      = "logs.jsonl"
)

// ExecutionRepository keeps one directory per run.
type ExecutionRepository struct {
	locker

	root string
}

func (er *ExecutionRepository) path(executionID, name string) (string, error) {
	return documentPath(er.root, "executions", executionID, name)
}

func (er *ExecutionRepository) CreateExecution(_ context.Context, record *models.ExecutionRecord) error {
	filePath, err := er.path(record.ID, executionFile)
	if err != nil {
		return persistence.NewExecutionError("CreateExecution", record.ID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	_, err = os.Stat(filePath)
	if err == nil {
		return persistence.NewExecutionError("CreateExecution", record.ID, persistence.ErrAlreadyExists)
	}

	return writeJSON(filePath, record)
}

func (er *ExecutionRepository) UpdateExecution(_ context.Context, record *models.ExecutionRecord) error {
	filePath, err := er.path(record.ID, executionFile)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecution", record.ID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	_, err = os.Stat(filePath)
	if isNotExist(err) {
		return persistence.NewExecutionError("UpdateExecution", record.ID, persistence.ErrExecutionNotFound)
	}

	return writeJSON(filePath, record)
}

func (er *ExecutionRepository) GetExecution(_ context.Context, id string) (*models.ExecutionRecord, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	return er.readExecution(id)
}

func (er *ExecutionRepository) readExecution(id string) (*models.ExecutionRecord, error) {
	filePath, err := er.path(id, executionFile)
	if err != nil {
		return nil, persistence.NewExecutionError("GetExecution", id, err)
	}

	var record models.ExecutionRecord

	err = readJSON(filePath, &record)
	if isNotExist(err) {
		return nil, persistence.NewExecutionError("GetExecution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch execution %s: %w", id, err)
	}

	return &record, nil
}

// ListExecutions scans every run directory. Runs are sorted newest first.
func (er *ExecutionRepository) ListExecutions(_ context.Context, flowID string) ([]*models.ExecutionRecord, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(er.root, "executions"))
	if isNotExist(err) {
		return []*models.ExecutionRecord{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	records := make([]*models.ExecutionRecord, 0)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		record, err := er.readExecution(entry.Name())
		if persistence.IsExecutionNotFound(err) {
			continue
		}

		if err != nil {
			return nil, err
		}

		if record.FlowID == flowID {
			records = append(records, record)
		}
	}

	slices.SortStableFunc(records, func(a, b *models.ExecutionRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return records, nil
}

func (er *ExecutionRepository) CreateNodeExecutions(_ context.Context, records []*models.NodeExecutionRecord) error {
	byExecution := make(map[string][]*models.NodeExecutionRecord)
	for _, record := range records {
		byExecution[record.ExecutionID] = append(byExecution[record.ExecutionID], record)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	for executionID, created := range byExecution {
		existing, err := er.readNodes(executionID)
		if err != nil {
			return err
		}

		existing = append(existing, created...)
		slices.SortStableFunc(existing, func(a, b *models.NodeExecutionRecord) int {
			return a.ExecutionOrder - b.ExecutionOrder
		})

		err = er.writeNodes(executionID, existing)
		if err != nil {
			return err
		}
	}

	return nil
}

func (er *ExecutionRepository) UpdateNodeExecution(_ context.Context, record *models.NodeExecutionRecord) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	existing, err := er.readNodes(record.ExecutionID)
	if err != nil {
		return err
	}

	index := slices.IndexFunc(existing, func(candidate *models.NodeExecutionRecord) bool {
		return candidate.ID == record.ID
	})
	if index < 0 {
		return persistence.NewExecutionError("UpdateNodeExecution", record.ExecutionID, persistence.ErrNodeExecutionNotFound)
	}

	existing[index] = record

	return er.writeNodes(record.ExecutionID, existing)
}

func (er *ExecutionRepository) NodeExecutions(_ context.Context, executionID string) ([]*models.NodeExecutionRecord, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	return er.readNodes(executionID)
}

func (er *ExecutionRepository) readNodes(executionID string) ([]*models.NodeExecutionRecord, error) {
	filePath, err := er.path(executionID, nodesFile)
	if err != nil {
		return nil, persistence.NewExecutionError("NodeExecutions", executionID, err)
	}

	records := make([]*models.NodeExecutionRecord, 0)

	err = readJSON(filePath, &records)
	if isNotExist(err) {
		return records, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read node executions of %s: %w", executionID, err)
	}

	return records, nil
}

func (er *ExecutionRepository) writeNodes(executionID string, records []*models.NodeExecutionRecord) error {
	filePath, err := er.path(executionID, nodesFile)
	if err != nil {
		return persistence.NewExecutionError("NodeExecutions", executionID, err)
	}

	return writeJSON(filePath, records)
}

// AppendLog adds one JSON line to the run's log file.
func (er *ExecutionRepository) AppendLog(_ context.Context, entry *models.LogEntry) error {
	filePath, err := er.path(entry.ExecutionID, logsFile)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, err)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	err = os.MkdirAll(filepath.Dir(filePath), 0750)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log of %s: %w", entry.ExecutionID, err)
	}

	_, err = file.Write(append(line, '\n'))

	return errors.Join(err, file.Close())
}

func (er *ExecutionRepository) Logs(_ context.Context, executionID string) ([]*models.LogEntry, error) {
	filePath, err := er.path(executionID, logsFile)
	if err != nil {
		return nil, persistence.NewExecutionError("Logs", executionID, err)
	}

	er.mu.RLock()
	defer er.mu.RUnlock()

	entries := make([]*models.LogEntry, 0)

	file, err := os.Open(filePath)
	if isNotExist(err) {
		return entries, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open log of %s: %w", executionID, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	for {
		var entry models.LogEntry

		err := decoder.Decode(&entry)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to decode log of %s: %w", executionID, err)
		}

		entries = append(entries, &entry)
	}
}
