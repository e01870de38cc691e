package kernel

import "maps"

// User is the signed-in user.
type User struct {
	ID    string
	Name  string
	Email string
}

// Project is the project open in the workspace.
type Project struct {
	Name string
	Path string
}

// AppContext exposes read-only host state.
type AppContext interface {
	CurrentUser() User
	WorkspaceID() string
	Project() Project

	// Endpoints returns a copy of the named service endpoints.
	Endpoints() map[string]string
}

// StaticApp is an AppContext with fixed values.
type StaticApp struct {
	user      User
	workspace string
	project   Project
	endpoints map[string]string
}

// NewStaticApp creates an AppContext from fixed values. endpoints is copied.
func NewStaticApp(user User, workspaceID string, project Project, endpoints map[string]string) *StaticApp {
	return &StaticApp{
		user:      user,
		workspace: workspaceID,
		project:   project,
		endpoints: maps.Clone(endpoints),
	}
}

// CurrentUser implements AppContext.
func (a *StaticApp) CurrentUser() User { return a.user }

// WorkspaceID implements AppContext.
func (a *StaticApp) WorkspaceID() string { return a.workspace }

// Project implements AppContext.
func (a *StaticApp) Project() Project { return a.project }

// Endpoints implements AppContext.
func (a *StaticApp) Endpoints() map[string]string {
	if a.endpoints == nil {
		return map[string]string{}
	}
	return maps.Clone(a.endpoints)
}
