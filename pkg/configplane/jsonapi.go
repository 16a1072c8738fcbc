// Package configplane implements component H: in-process create/alter/
// destroy of servers, services, listeners, monitors and filters through a
// JSON:API-shaped contract, with relationship validation and crash-safe
// persistence, per spec section 4.H. The HTTP transport itself is out of
// scope; this package exposes plain Go functions over already-decoded
// JSON:API structures, to be mounted behind any mux by the caller.
package configplane

// Document is one JSON:API request/response body, matching the shape
// spec section 6 names: {"data": {...}, "relationships": {...}}.
type Document struct {
	Data *Resource `json:"data,omitempty"`
}

// Resource is a single JSON:API resource object.
type Resource struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    Attributes              `json:"attributes"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// Attributes is the per-type attribute bag; Parameters holds the
// module-specific keys spec section 4.H validates and diffs, Router/
// Module/Protocol are the fixed, type-dependent fields named by spec
// section 4.H step 1.
type Attributes struct {
	Router     string                 `json:"router,omitempty"`
	Module     string                 `json:"module,omitempty"`
	Protocol   string                 `json:"protocol,omitempty"`
	Parameters map[string]interface{} `json:"parameters"`
}

// Relationship is a to-many or to-one JSON:API relationship.
type Relationship struct {
	Data []ResourceRef `json:"data"`
}

// ResourceRef identifies a related resource by id+type.
type ResourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ErrorsDocument is the JSON:API error response shape of spec section
// 4.H's final paragraph: "Errors are accumulated per-thread and returned
// as a JSON:API errors array."
type ErrorsDocument struct {
	Errors []APIError `json:"errors"`
}

// APIError is one entry in an ErrorsDocument.
type APIError struct {
	Detail string `json:"detail"`
	Status string `json:"status,omitempty"`
}

func (d *ErrorsDocument) add(detail string) {
	d.Errors = append(d.Errors, APIError{Detail: detail})
}

func (d *ErrorsDocument) Empty() bool { return len(d.Errors) == 0 }
