package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/dukex/flowstudio/pkg/persistence"
)

type PublicationRepository struct {
	mu           sync.RWMutex
	publications map[string]*models.Publication
}

func NewPublicationRepository() *PublicationRepository {
	return &PublicationRepository{publications: make(map[string]*models.Publication)}
}

func (r *PublicationRepository) GetAll(_ context.Context) ([]*models.Publication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	publications := make([]*models.Publication, 0, len(r.publications))
	for _, publication := range r.publications {
		publications = append(publications, publication)
	}

	slices.SortFunc(publications, func(a, b *models.Publication) int {
		return a.PublishedAt.Compare(b.PublishedAt)
	})

	return cloneAll(publications)
}

func (r *PublicationRepository) Save(_ context.Context, publication *models.Publication) error {
	stored, err := clone(publication)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.publications[models.PublicationKey(publication.FlowID, publication.Version)] = stored

	return nil
}

func (r *PublicationRepository) Delete(_ context.Context, flowID, version string) error {
	key := models.PublicationKey(flowID, version)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.publications[key]; !ok {
		return persistence.NewFlowError("DeletePublication", flowID, persistence.ErrPublicationNotFound)
	}

	delete(r.publications, key)

	return nil
}
