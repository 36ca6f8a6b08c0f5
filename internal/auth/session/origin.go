package session

// OriginPolicy decides whether a browser-reported Origin may use
// cookie-authenticated endpoints. Matching is exact string comparison of
// scheme, host and port; there is no suffix or subdomain matching.
type OriginPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// NewOriginPolicy builds a policy from an allow-list. The single entry "*"
// allows every origin. An empty list allows no cross-origin caller; since
// browsers send an Origin header on every POST, the transport layer must
// resolve same-origin requests itself before consulting this policy.
func NewOriginPolicy(origins []string) OriginPolicy {
	p := OriginPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o == "*" {
			p.allowAll = true
			continue
		}
		p.allowed[o] = struct{}{}
	}
	return p
}

// IsAllowedOrigin reports whether the given Origin header value is
// acceptable. The empty string (header absent) is the caller's decision,
// not this policy's; callers treat an absent header as same-origin.
func (p OriginPolicy) IsAllowedOrigin(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}
