package models

import (
	"fmt"
	"time"
)

// Publication exposes one flow version as a standalone network service.
type Publication struct {
	FlowID       string    `json:"flow_id"`
	Version      string    `json:"version"`
	Name         string    `json:"name"`
	Endpoint     string    `json:"endpoint"`
	IsPublic     bool      `json:"is_public"`
	RateLimit    *int      `json:"rate_limit,omitempty"`
	MaxInstances int       `json:"max_instances"`
	Flow         *Flow     `json:"flow"` // Snapshot served by the worker process
	PublishedAt  time.Time `json:"published_at"`
}

// PublicationEndpoint returns the external execute path of a published flow version.
func PublicationEndpoint(flowID, version string) string {
	return fmt.Sprintf("/api/flows/%s/v%s/execute", flowID, version)
}

// PublicationKey identifies one published flow version, "flowID:version".
func PublicationKey(flowID, version string) string {
	return flowID + ":" + version
}
