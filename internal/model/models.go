package model

import (
	"time"
)

// Sync status tags.
const (
	StatusNoChanges = "no changes"
	StatusUpdated   = "updated"

	StatusCreated = "created"
)

// CatalogStatus describes the repository as seen by the service catalog.
type CatalogStatus struct {
	Active        bool `json:"active"`
	TechDocs      bool `json:"tech_docs"`
	QualityGate   bool `json:"quality_gate"`
	CIAnnotation  bool `json:"ci_annotation"`
	Observability bool `json:"observability"`
}

// SourceHostStatus is active when the repository has run CI at least once.
type SourceHostStatus struct {
	Active bool `json:"active"`
}

// QualityPlatformStatus is active when the repository is registered as a project.
type QualityPlatformStatus struct {
	Active bool `json:"active"`
}

// Repository is the persisted record for a repository of the organization.
type Repository struct {
	ID              int64                  `json:"id"`
	Name            string                 `json:"name"`
	Contributors    []string               `json:"contributors"`
	Catalog         *CatalogStatus         `json:"catalog,omitempty"`
	SourceHost      *SourceHostStatus      `json:"source_host,omitempty"`
	QualityPlatform *QualityPlatformStatus `json:"quality_platform,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       *time.Time             `json:"updated_at,omitempty"`
}

// RepositoryCollection is the listAll response body.
type RepositoryCollection struct {
	Count        int          `json:"count"`
	Repositories []Repository `json:"repositories"`
}

// SyncResult summarizes one reconciliation run.
type SyncResult struct {
	Status       string   `json:"status"`
	Added        []string `json:"new_repositories"`
	Removed      []string `json:"deleted_repositories"`
	AddedCount   int      `json:"new_repositories_count"`
	RemovedCount int      `json:"deleted_repositories_count"`
}

// SyncOneResult reports whether a single-repository sync created or updated its record.
type SyncOneResult struct {
	Status     string     `json:"status"`
	Repository Repository `json:"repository"`
}
