// Package file provides file-based persistence of flows, executions and publications.
//
// Layout under the root directory:
//
//	flows/<id>.json
//	executions/<id>/execution.json
//	executions/<id>/nodes.json
//	executions/<id>/logs.jsonl
//	publications/<flow_id>_v<version>.json
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/flowstudio/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root         string
	flows        *FlowRepository
	executions   *ExecutionRepository
	publications *PublicationRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		flows:        &FlowRepository{root: cleanRoot},
		executions:   &ExecutionRepository{root: cleanRoot},
		publications: &PublicationRepository{root: cleanRoot},
	}
}

func (fp *Persistence) FlowRepository() persistence.FlowRepository {
	return fp.flows
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executions
}

func (fp *Persistence) PublicationRepository() persistence.PublicationRepository {
	return fp.publications
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck creates the root directory when missing and verifies it is a directory.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	err := os.MkdirAll(fp.root, 0750)
	if err != nil {
		return fmt.Errorf("failed to create persistence root %s: %w", fp.root, err)
	}

	info, err := os.Stat(fp.root)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("persistence root %s is not a directory", fp.root)
	}

	return nil
}

// documentPath joins an id-derived name under root, rejecting names that would escape it.
func documentPath(root string, parts ...string) (string, error) {
	for _, part := range parts {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid identifier %q", part)
		}
	}

	return filepath.Join(append([]string{root}, parts...)...), nil
}

func readJSON(path string, target any) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(body, target)
}

func writeJSON(path string, value any) error {
	err := os.MkdirAll(filepath.Dir(path), 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// locker serializes writers of one repository.
type locker struct {
	mu sync.RWMutex
}
