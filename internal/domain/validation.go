package domain

import "regexp"

var (
	subdomainPattern    = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)
	customDomainPattern = regexp.MustCompile(`^([a-z0-9]+(-[a-z0-9]+)*\.)+[a-z]{2,}$`)
)

// ValidSubdomain checks the §6 subdomain regex and length bound (3-63).
func ValidSubdomain(s string) bool {
	if len(s) < 3 || len(s) > 63 {
		return false
	}
	return subdomainPattern.MatchString(s)
}

// ValidCustomDomain checks the §6 custom domain regex and length bound
// (3-253).
func ValidCustomDomain(s string) bool {
	if len(s) < 3 || len(s) > 253 {
		return false
	}
	return customDomainPattern.MatchString(s)
}

// ValidPort checks the 1..=65535 range.
func ValidPort(port int32) bool {
	return port >= 1 && port <= 65535
}

// ValidDesiredReplicas checks the replica range, which differs between
// create (1..=25) and update (0..=25).
func ValidDesiredReplicas(n int32, allowZero bool) bool {
	min := int32(1)
	if allowZero {
		min = 0
	}
	return n >= min && n <= 25
}

// ValidateCreateWorkItem checks the fields the Provisioner's create handler
// passes straight into cluster object creation. A failure here is a bad
// field, not a transient condition: the caller rejects without requeue.
func ValidateCreateWorkItem(item CreateWorkItem) error {
	if !ValidPort(item.Port) {
		return &ValidationError{Field: "port", Message: "must be between 1 and 65535"}
	}
	if !ValidDesiredReplicas(item.DesiredReplicas, false) {
		return &ValidationError{Field: "desiredReplicas", Message: "must be between 1 and 25"}
	}
	if item.Subdomain != "" && !ValidSubdomain(item.Subdomain) {
		return &ValidationError{Field: "subdomain", Message: "invalid subdomain"}
	}
	if item.Domain != "" && !ValidCustomDomain(item.Domain) {
		return &ValidationError{Field: "domain", Message: "invalid custom domain"}
	}
	return nil
}

// ValidateUpdateWorkItem checks only the fields present on the update; an
// absent field is never patched, so it is never validated.
func ValidateUpdateWorkItem(item UpdateWorkItem) error {
	if item.Port != nil && !ValidPort(*item.Port) {
		return &ValidationError{Field: "port", Message: "must be between 1 and 65535"}
	}
	if item.DesiredReplicas != nil && !ValidDesiredReplicas(*item.DesiredReplicas, true) {
		return &ValidationError{Field: "desiredReplicas", Message: "must be between 0 and 25"}
	}
	if item.Subdomain != nil && *item.Subdomain != "" && !ValidSubdomain(*item.Subdomain) {
		return &ValidationError{Field: "subdomain", Message: "invalid subdomain"}
	}
	if item.Domain != nil && *item.Domain != "" && !ValidCustomDomain(*item.Domain) {
		return &ValidationError{Field: "domain", Message: "invalid custom domain"}
	}
	return nil
}
