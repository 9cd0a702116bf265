package resourcemanager

import (
	"context"

	"github.com/odpf/salt/log"
	"google.golang.org/api/cloudresourcemanager/v3"

	"github.com/odpf/tablevault/internal/errors"
)

const entityResourceManager = "resourcemanager"

// ProjectLister enumerates the active projects directly under a folder.
type ProjectLister struct {
	l   log.Logger
	crm *cloudresourcemanager.Service
}

func NewProjectLister(ctx context.Context, logger log.Logger) (*ProjectLister, error) {
	svc, err := cloudresourcemanager.NewService(ctx)
	if err != nil {
		return nil, errors.InternalError(entityResourceManager, "failed to create resource manager service", err)
	}
	return &ProjectLister{
		l:   logger,
		crm: svc,
	}, nil
}

func (p *ProjectLister) ListProjects(ctx context.Context, folderID string) ([]string, error) {
	var projects []string
	call := p.crm.Projects.List().Parent("folders/" + folderID).Context(ctx)
	err := call.Pages(ctx, func(resp *cloudresourcemanager.ListProjectsResponse) error {
		for _, project := range resp.Projects {
			if project.State == "ACTIVE" {
				projects = append(projects, project.ProjectId)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.InternalError(entityResourceManager, "failed to list projects in folder "+folderID, err)
	}
	return projects, nil
}
