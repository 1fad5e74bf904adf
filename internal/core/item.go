package core

// Item is one unit of install work handed to an installer backend.
type Item struct {
	WorkspaceID string   `json:"workspace_id"`
	Kind        LogKind  `json:"kind"`
	Name        string   `json:"name"`
	Manager     string   `json:"manager,omitempty"`
	Platform    string   `json:"platform,omitempty"`
	Installer   string   `json:"installer,omitempty"`
	Version     string   `json:"version,omitempty"`
	Dotfile     *Dotfile `json:"dotfile,omitempty"`
}
