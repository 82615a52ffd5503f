package ingest

// Principal is the authenticated caller as asserted by the web layer.
type Principal struct {
	UserID string
	Admin  bool
}

// CanAccess reports whether the principal may read or mutate a job owned by ownerID.
func (p Principal) CanAccess(ownerID string) bool {
	if p.Admin {
		return true
	}
	return p.UserID != "" && p.UserID == ownerID
}
