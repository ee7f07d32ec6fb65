package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
)

// PublicationRepository stores one file per published flow version.
type PublicationRepository struct {
	locker

	root string
}

func (pr *PublicationRepository) path(flowID, version string) (string, error) {
	return documentPath(pr.root, "publications", fmt.Sprintf("%s_v%s.json", flowID, version))
}

func (pr *PublicationRepository) GetAll(_ context.Context) ([]*models.Publication, error) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	dir := filepath.Join(pr.root, "publications")

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list publication files: %w", err)
	}

	publications := make([]*models.Publication, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		var publication models.Publication

		err := readJSON(filepath.Join(dir, name), &publication)
		if err != nil {
			return nil, fmt.Errorf("failed to read publication %s: %w", name, err)
		}

		publications = append(publications, &publication)
	}

	slices.SortFunc(publications, func(a, b *models.Publication) int {
		return a.PublishedAt.Compare(b.PublishedAt)
	})

	return publications, nil
}

func (pr *PublicationRepository) Save(_ context.Context, publication *models.Publication) error {
	filePath, err := pr.path(publication.FlowID, publication.Version)
	if err != nil {
		return persistence.NewFlowError("SavePublication", publication.FlowID, err)
	}

	pr.mu.Lock()
	defer pr.mu.Unlock()

	return writeJSON(filePath, publication)
}

func (pr *PublicationRepository) Delete(_ context.Context, flowID, version string) error {
	filePath, err := pr.path(flowID, version)
	if err != nil {
		return persistence.NewFlowError("DeletePublication", flowID, err)
	}

	pr.mu.Lock()
	defer pr.mu.Unlock()

	err = os.Remove(filePath)
	if isNotExist(err) {
		return persistence.NewFlowError("DeletePublication", flowID, persistence.ErrPublicationNotFound)
	}

	return err
}
