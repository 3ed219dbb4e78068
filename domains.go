package gatekeeper

import "strings"

// DomainAllowlist holds email domains that bypass the whitelist check during
// magic link redemption. Whitelisting an address on one of these domains is
// redundant and rejected.
type DomainAllowlist struct {
	domains map[string]struct{}
}

// NewDomainAllowlist builds an allowlist from domain names, case-insensitive.
func NewDomainAllowlist(domains ...string) DomainAllowlist {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return DomainAllowlist{domains: set}
}

// ContainsEmail reports whether the email's domain is auto-approved.
func (d DomainAllowlist) ContainsEmail(email string) bool {
	if len(d.domains) == 0 {
		return false
	}
	_, ok := d.domains[emailDomain(email)]
	return ok
}

func emailDomain(email string) string {
	email = NormalizeEmail(email)
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}
