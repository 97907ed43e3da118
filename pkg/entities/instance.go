package entities

// Instance describes the server.
type Instance struct {
	URI              string        `json:"uri"`
	Title            string        `json:"title"`
	ShortDescription string        `json:"short_description,omitempty"`
	Description      string        `json:"description"`
	Email            string        `json:"email"`
	Version          string        `json:"version"`
	Languages        []string      `json:"languages,omitempty"`
	URLs             *InstanceURLs `json:"urls,omitempty"`
	Stats            *Stats        `json:"stats,omitempty"`
	ContactAccount   *Account      `json:"contact_account,omitempty"`
}

// InstanceURLs lists the server's auxiliary endpoints.
type InstanceURLs struct {
	// StreamingAPI is the ws/wss base of the streaming endpoint, which may
	// live on a different host than the REST API.
	StreamingAPI string `json:"streaming_api"`
}

// Stats are server-wide counters.
type Stats struct {
	UserCount   uint64 `json:"user_count"`
	StatusCount uint64 `json:"status_count"`
	DomainCount uint64 `json:"domain_count"`
}
