package models

// Event types pushed over the live-view channel.
const (
	EventUpdateProjects = "update_projects"
	EventUpdateTasks    = "update_tasks"
)

// Event is the envelope pushed to every connected observer after a
// mutation. Exactly one of Projects or Tasks is populated; ProjectID
// scopes a task update to its owning project.
type Event struct {
	Type      string     `json:"type"`
	Projects  []*Project `json:"projects,omitempty"`
	Tasks     []*Task    `json:"tasks,omitempty"`
	ProjectID string     `json:"projectId,omitempty"`
}
