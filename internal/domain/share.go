package domain

// Share is a row of the shares table. ComputerID is stored as text to keep
// the column type external tooling expects.
type Share struct {
	ID         int64  `json:"id" yaml:"id"`
	ComputerID int64  `json:"computerid" yaml:"computerid"`
	UserID     int64  `json:"userid" yaml:"userid"`
	Name       string `json:"name" yaml:"name"`
	Remark     string `json:"remark,omitempty" yaml:"remark,omitempty"`
	Read       bool   `json:"read" yaml:"read"`
	Write      bool   `json:"write" yaml:"write"`
}
