package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
)

// FlowRepository handles flow files.
type FlowRepository struct {
	locker

	root string
}

func (fr *FlowRepository) dir() string {
	return filepath.Join(fr.root, "flows")
}

// GetAll returns every stored flow sorted by creation time.
func (fr *FlowRepository) GetAll(ctx context.Context) ([]*models.Flow, error) {
	fr.mu.RLock()
	defer fr.mu.RUnlock()

	jsonFiles, err := fs.Glob(os.DirFS(fr.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list flow files: %w", err)
	}

	flows := make([]*models.Flow, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		flow, err := fr.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}

		flows = append(flows, flow)
	}

	slices.SortFunc(flows, func(a, b *models.Flow) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return flows, nil
}

// GetByID retrieves a flow by its ID from the file system.
func (fr *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	fr.mu.RLock()
	defer fr.mu.RUnlock()

	return fr.read(id)
}

func (fr *FlowRepository) read(id string) (*models.Flow, error) {
	filePath, err := documentPath(fr.root, "flows", id+".json")
	if err != nil {
		return nil, persistence.NewFlowError("GetByID", id, err)
	}

	var flow models.Flow

	err = readJSON(filePath, &flow)
	if isNotExist(err) {
		return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch flow %s: %w", id, err)
	}

	return &flow, nil
}

// Save writes a flow, stamping CreatedAt on first save.
func (fr *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	filePath, err := documentPath(fr.root, "flows", flow.ID+".json")
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	fr.mu.Lock()
	defer fr.mu.Unlock()

	return writeJSON(filePath, flow)
}

// Delete removes a flow by its ID.
func (fr *FlowRepository) Delete(_ context.Context, id string) error {
	filePath, err := documentPath(fr.root, "flows", id+".json")
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	fr.mu.Lock()
	defer fr.mu.Unlock()

	err = os.Remove(filePath)
	if isNotExist(err) {
		return persistence.NewFlowError("Delete", id, persistence.ErrFlowNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to delete flow %s: %w", id, err)
	}

	return nil
}
