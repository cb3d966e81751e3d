package domain

// AdminRelation records that a credential has admin rights on a computer
type AdminRelation struct {
	ID         int64 `json:"id" yaml:"id"`
	UserID     int64 `json:"userid" yaml:"userid"`
	ComputerID int64 `json:"computerid" yaml:"computerid"`
}

// GroupRelation records that a credential is a member of a group
type GroupRelation struct {
	ID      int64 `json:"id" yaml:"id"`
	UserID  int64 `json:"userid" yaml:"userid"`
	GroupID int64 `json:"groupid" yaml:"groupid"`
}

// LoggedInRelation records that a credential was seen logged in to a computer
type LoggedInRelation struct {
	ID         int64 `json:"id" yaml:"id"`
	UserID     int64 `json:"userid" yaml:"userid"`
	ComputerID int64 `json:"computerid" yaml:"computerid"`
}
