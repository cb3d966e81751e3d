package domain

// Computer is a row of the computers table
type Computer struct {
	ID         int64  `json:"id" yaml:"id"`
	IP         string `json:"ip" yaml:"ip"`
	Hostname   string `json:"hostname" yaml:"hostname"`
	Domain     string `json:"domain" yaml:"domain"`
	OS         string `json:"os" yaml:"os"`
	DC         bool   `json:"dc" yaml:"dc"`
	SMBv1      bool   `json:"smbv1" yaml:"smbv1"`
	Signing    bool   `json:"signing" yaml:"signing"`
	Spooler    bool   `json:"spooler" yaml:"spooler"`
	Zerologon  bool   `json:"zerologon" yaml:"zerologon"`
	PetitPotam bool   `json:"petitpotam" yaml:"petitpotam"`
}

// ComputerObservation is what a probe learned about a host in one pass.
// DC is optional: nil means the probe could not tell.
type ComputerObservation struct {
	IP         string
	Hostname   string
	Domain     string
	OS         string
	SMBv1      bool
	Signing    bool
	Spooler    bool
	Zerologon  bool
	PetitPotam bool
	DC         *bool
}

// Normalized returns a copy with the domain reduced to its short form
func (o ComputerObservation) Normalized() ComputerObservation {
	o.Domain = NormalizeDomain(o.Domain)
	return o
}

// DiffersFrom reports whether the tracked fields disagree with the stored row.
// Only hostname, domain, os, smbv1 and signing are compared; the vulnerability
// flags ride along with those updates.
func (o ComputerObservation) DiffersFrom(c Computer) bool {
	return o.Hostname != c.Hostname ||
		o.Domain != c.Domain ||
		o.OS != c.OS ||
		o.SMBv1 != c.SMBv1 ||
		o.Signing != c.Signing
}

// DCChanged reports whether the observation carries a DC flag that disagrees
// with the stored row
func (o ComputerObservation) DCChanged(c Computer) bool {
	return o.DC != nil && *o.DC != c.DC
}

// Bool returns a pointer to b, for optional observation flags
func Bool(b bool) *bool {
	return &b
}
