// Package server wires repositories, services and handlers into a running
// HTTP server.
package server

import (
	"fmt"

	approvalRepository "github.com/ncobase/keyvault/core/approval/data/repository"
	approvalService "github.com/ncobase/keyvault/core/approval/service"
	authRepository "github.com/ncobase/keyvault/core/authority/data/repository"
	authService "github.com/ncobase/keyvault/core/authority/service"
	entryService "github.com/ncobase/keyvault/core/entry/service"
	envRepository "github.com/ncobase/keyvault/core/environment/data/repository"
	envService "github.com/ncobase/keyvault/core/environment/service"
	eventRepository "github.com/ncobase/keyvault/core/event/data/repository"
	eventService "github.com/ncobase/keyvault/core/event/service"
	projectRepository "github.com/ncobase/keyvault/core/project/data/repository"
	projectService "github.com/ncobase/keyvault/core/project/service"
	"github.com/ncobase/keyvault/core/secret"
	"github.com/ncobase/keyvault/core/variable"
	wsRepository "github.com/ncobase/keyvault/core/workspace/data/repository"
	wsService "github.com/ncobase/keyvault/core/workspace/service"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/logging/logger"
)

// Options selects the pluggable parts of an App.
type Options struct {
	Cache     authService.Cache
	Store     eventRepository.Store
	BusBuffer int
}

// App holds every service of the process.
type App struct {
	Data         *data.Data
	Bus          *eventService.Bus
	Recorder     *eventService.Recorder
	Gate         *authService.Gate
	Authority    *authService.Service
	Approvals    *approvalService.Service
	Workspaces   *wsService.Service
	Projects     *projectService.Service
	Environments *envService.Service
	Secrets      *entryService.Service
	Variables    *entryService.Service
	Events       *eventService.Service
}

// Build creates the schema and the services. Tables are created in
// dependency order: workspaces, roles, memberships, projects, environments,
// secrets, variables, approvals and events.
func Build(d *data.Data, opts Options, log *logger.Logger) (*App, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if opts.BusBuffer <= 0 {
		opts.BusBuffer = 1000
	}

	workspaces, err := wsRepository.NewWorkspaceRepository(d, log)
	if err != nil {
		return nil, fmt.Errorf("workspace repository: %w", err)
	}
	roles, err := authRepository.NewRoleRepository(d)
	if err != nil {
		return nil, fmt.Errorf("role repository: %w", err)
	}
	members, err := authRepository.NewMembershipRepository(d)
	if err != nil {
		return nil, fmt.Errorf("membership repository: %w", err)
	}
	projects, err := projectRepository.New(d)
	if err != nil {
		return nil, fmt.Errorf("project repository: %w", err)
	}
	environments, err := envRepository.New(d)
	if err != nil {
		return nil, fmt.Errorf("environment repository: %w", err)
	}

	bus := eventService.NewBus(opts.BusBuffer, log, opts.Store)
	recorder := eventService.NewRecorder(bus, log)

	resolver := authService.NewResolver(roles, members, opts.Cache, log)
	gate := authService.NewGate(resolver)
	authority := authService.NewService(d, roles, members, gate, recorder, log)

	approvalRepo, err := approvalRepository.New(d)
	if err != nil {
		return nil, fmt.Errorf("approval repository: %w", err)
	}
	approvals := approvalService.NewService(d, approvalRepo, gate, recorder, log)

	app := &App{
		Data:      d,
		Bus:       bus,
		Recorder:  recorder,
		Gate:      gate,
		Authority: authority,
		Approvals: approvals,
		Events:    eventService.NewService(opts.Store, resolver, log),
	}
	app.Workspaces = wsService.NewService(d, workspaces, gate, authority, approvals, recorder, log)
	app.Projects = projectService.NewService(d, projects, environments, app.Workspaces, gate, approvals, recorder, log)
	app.Environments = envService.NewService(d, environments, app.Projects, gate, approvals, recorder, log)

	deps := entryService.Deps{
		Data:         d,
		Projects:     app.Projects,
		Environments: app.Environments,
		Gate:         gate,
		Approvals:    approvals,
		Recorder:     recorder,
		Logger:       log,
	}
	if app.Secrets, err = secret.New(deps); err != nil {
		return nil, fmt.Errorf("secret repository: %w", err)
	}
	if app.Variables, err = variable.New(deps); err != nil {
		return nil, fmt.Errorf("variable repository: %w", err)
	}

	app.Projects.SetSecretCounter(app.Secrets)
	authority.SetAssignmentValidator(app.Projects)
	approvals.SetDispatcher(approvalService.NewDispatcher(
		app.Workspaces, app.Projects, app.Environments, app.Secrets.Target(), app.Variables.Target(),
	))
	return app, nil
}
