package domain

// Common credential type tags. The column is free-form; these are the values
// the scanners emit.
const (
	CredTypePlaintext = "plaintext"
	CredTypeHash      = "hash"
)

// Credential is a row of the users table
type Credential struct {
	ID       int64  `json:"id" yaml:"id"`
	Domain   string `json:"domain" yaml:"domain"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	CredType string `json:"credtype,omitempty" yaml:"credtype,omitempty"`
	// PillagedFrom is the computer id the secret was harvested from, 0 if unknown
	PillagedFrom int64 `json:"pillaged_from_computerid,omitempty" yaml:"pillaged_from_computerid,omitempty"`
}

// IsBare reports whether the row is a pre-registered account with no secret
// material attached yet
func (c Credential) IsBare() bool {
	return c.Password == "" && c.CredType == "" && c.PillagedFrom == 0
}

// CredentialObservation is a credential found during a scan
type CredentialObservation struct {
	CredType     string
	Domain       string
	Username     string
	Password     string
	GroupID      int64 // 0 when no group membership is known
	PillagedFrom int64 // 0 when the source host is unknown
}

// AdminObservation says a credential has administrative access on the hosts
// matching Host (a SQL LIKE pattern over IP addresses). When UserID is set it
// is used instead of the credential fields to find the user rows.
type AdminObservation struct {
	CredType string
	Domain   string
	Username string
	Password string
	Host     string
	UserID   int64
}
