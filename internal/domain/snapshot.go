package domain

// Snapshot is the full content of a store at one point in time
type Snapshot struct {
	Computers         []Computer         `json:"computers" yaml:"computers"`
	Credentials       []Credential       `json:"credentials" yaml:"credentials"`
	Groups            []Group            `json:"groups" yaml:"groups"`
	Shares            []Share            `json:"shares" yaml:"shares"`
	AdminRelations    []AdminRelation    `json:"admin_relations" yaml:"admin_relations"`
	GroupRelations    []GroupRelation    `json:"group_relations" yaml:"group_relations"`
	LoggedInRelations []LoggedInRelation `json:"loggedin_relations" yaml:"loggedin_relations"`
}
