package domain

import "strings"

// ServiceRequestKind tells whether a lead asked for a concrete service yet.
type ServiceRequestKind uint8

const (
	ServiceRequestNone ServiceRequestKind = iota
	// ServiceRequestUnresolved holds a catalog intent still waiting for a locality.
	ServiceRequestUnresolved
	// ServiceRequestResolved holds a service label offered by providers.
	ServiceRequestResolved
)

// ServiceRequest is what a lead asked for: nothing, an intent awaiting resolution,
// or a concrete service label.
type ServiceRequest struct {
	kind  ServiceRequestKind
	value string
}

// Unresolved returns a request for a catalog intent.
func Unresolved(intentID string) ServiceRequest {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return ServiceRequest{}
	}
	return ServiceRequest{kind: ServiceRequestUnresolved, value: intentID}
}

// Resolved returns a request for a concrete provider service.
func Resolved(service string) ServiceRequest {
	service = strings.TrimSpace(service)
	if service == "" {
		return ServiceRequest{}
	}
	return ServiceRequest{kind: ServiceRequestResolved, value: service}
}

// Kind returns the variant.
func (r ServiceRequest) Kind() ServiceRequestKind { return r.kind }

// IsZero reports whether nothing was requested.
func (r ServiceRequest) IsZero() bool { return r.kind == ServiceRequestNone }

// IntentID returns the pending intent.
func (r ServiceRequest) IntentID() (string, bool) {
	if r.kind != ServiceRequestUnresolved {
		return "", false
	}
	return r.value, true
}

// Service returns the concrete service label.
func (r ServiceRequest) Service() (string, bool) {
	if r.kind != ServiceRequestResolved {
		return "", false
	}
	return r.value, true
}

// Columns splits the request into the requested_intent and service columns.
// At most one of them is non-nil.
func (r ServiceRequest) Columns() (intentID, service *string) {
	v := r.value
	switch r.kind {
	case ServiceRequestUnresolved:
		return &v, nil
	case ServiceRequestResolved:
		return nil, &v
	}
	return nil, nil
}

// ServiceRequestFromColumns rebuilds a request from its stored columns.
// A concrete service wins if both are somehow present.
func ServiceRequestFromColumns(intentID, service *string) ServiceRequest {
	if service != nil && strings.TrimSpace(*service) != "" {
		return Resolved(*service)
	}
	if intentID != nil {
		return Unresolved(*intentID)
	}
	return ServiceRequest{}
}

func (r ServiceRequest) String() string {
	switch r.kind {
	case ServiceRequestUnresolved:
		return "intent:" + r.value
	case ServiceRequestResolved:
		return r.value
	}
	return ""
}
