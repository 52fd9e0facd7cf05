package rpc

// AddCratesRequest is the request body for POST /add-crates.
type AddCratesRequest struct {
	Crates []CrateSpec `json:"crates"`
}

type CrateSpec struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// AddCratesResponse is the response body for POST /add-crates.
type AddCratesResponse struct {
	Results []CrateResult `json:"results"`
}

type CrateResult struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Traits  int    `json:"traits"`
	Error   string `json:"error,omitempty"`
}

// ProgressLine is a single line of NDJSON streamed from the add-crates endpoint.
type ProgressLine struct {
	Type    string       `json:"type"` // "progress" or "result"
	Message string       `json:"message,omitempty"`
	Result  *CrateResult `json:"result,omitempty"`
}

// PublishRequest is the request body for POST /publish: a raw implementors
// artifact, plus an optional trait path when the artifact's location (and
// therefore its trait) is not derivable from the body alone.
type PublishRequest struct {
	Artifact string `json:"artifact"`
	Trait    string `json:"trait,omitempty"`
}

// PublishResponse is the response body for POST /publish.
type PublishResponse struct {
	Queued    bool `json:"queued"` // true when the sink was not yet installed
	Crates    int  `json:"crates"`
	Fragments int  `json:"fragments"`
}

// ImplementorsRequest is the request body for POST /implementors.
type ImplementorsRequest struct {
	Crate   string `json:"crate"`
	Version string `json:"version"`
	Trait   string `json:"trait"`
}

// ImplementorEntry is one crate's fragments, in stored order.
type ImplementorEntry struct {
	Crate     string   `json:"crate"`
	Fragments []string `json:"fragments"`
}

// ImplementorsResponse is the response body for POST /implementors.
type ImplementorsResponse struct {
	Trait    string             `json:"trait"`
	DocsHTML string             `json:"docs_html,omitempty"`
	Entries  []ImplementorEntry `json:"entries"`
}

// ListTraitsRequest is the request body for POST /list-traits.
type ListTraitsRequest struct {
	Crate   string `json:"crate"`
	Version string `json:"version"`
}

type TraitSummary struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Implementors int    `json:"implementors"`
}

// ListTraitsResponse is the response body for POST /list-traits.
type ListTraitsResponse struct {
	Traits []TraitSummary `json:"traits"`
}

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type ImplResult struct {
	CrateName    string `json:"crate_name"`
	CrateVersion string `json:"crate_version"`
	Trait        string `json:"trait"`
	SourceCrate  string `json:"source_crate"`
	Header       string `json:"header"`
}

// SearchResponse is the response body for POST /search.
type SearchResponse struct {
	Results []ImplResult `json:"results"`
}

// ClearCacheRequest is the request body for POST /clear-cache. All=false
// clears only the rustdoc JSON cache; All=true also drops the fragment CAS
// and every stored crate, trait, and fragment row.
type ClearCacheRequest struct {
	All bool `json:"all,omitempty"`
}

// StatusResponse is the response body for GET /status.
type StatusResponse struct {
	Crates   []CrateStatus  `json:"crates"`
	Registry RegistryStatus `json:"registry"`
}

type CrateStatus struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Processed bool   `json:"processed"`
	Traits    int    `json:"traits"`
}

// RegistryStatus mirrors the daemon's registration point: whether the sink
// is installed, and how many mappings are parked or delivered.
type RegistryStatus struct {
	Ready     bool `json:"ready"`
	Pending   int  `json:"pending"`
	Published int  `json:"published"`
}
