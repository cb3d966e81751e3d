package domain

// Group is a row of the groups table
type Group struct {
	ID     int64  `json:"id" yaml:"id"`
	Domain string `json:"domain" yaml:"domain"`
	Name   string `json:"name" yaml:"name"`
}
