package domain

// Domain represents a short domain registered on the platform, either one of
// our own default domains or a customer custom domain.
//
// A domain with no configured root target is a valid, if unconfigured,
// state: root requests to it render the placeholder page, not a 404.
type Domain struct {
	ID          string // UUID for internal identification
	Slug        string // The domain name itself (e.g., "lnk.sh")
	Verified    bool   // DNS verification status
	Primary     bool   // Workspace's primary domain
	RootURL     *string // Root-redirect target; nil = serve placeholder
	WorkspaceID string
}

// HasRootRedirect reports whether root requests should redirect somewhere.
func (d *Domain) HasRootRedirect() bool {
	return d.RootURL != nil && *d.RootURL != ""
}
