// Package hook implements the hook-chain engine: every data-service call
// (find, get, create, update, patch, remove) is normalized into a Record,
// run through the interceptors registered for its phase and method, and
// converted back into positional call arguments.
package hook

// Method is the kind of data-service operation being bracketed.
type Method string

const (
	// MethodFind queries a collection: find(params).
	MethodFind Method = "find"
	// MethodGet fetches one entity: get(id, params).
	MethodGet Method = "get"
	// MethodCreate writes a new entity: create(data, params).
	MethodCreate Method = "create"
	// MethodUpdate replaces an entity: update(id, data, params).
	MethodUpdate Method = "update"
	// MethodPatch merges into an entity: patch(id, data, params).
	MethodPatch Method = "patch"
	// MethodRemove deletes an entity: remove(id, params).
	MethodRemove Method = "remove"
)

// MethodAll is the registration wildcard. It is never a record method.
const MethodAll = "all"

// String returns the string representation of the Method.
func (m Method) String() string {
	return string(m)
}

// AllMethods returns the six recognized methods in canonical order.
func AllMethods() []Method {
	return []Method{MethodFind, MethodGet, MethodCreate, MethodUpdate, MethodPatch, MethodRemove}
}

// Phase is the lifecycle stage a chain runs in. The engine treats it as an
// opaque key; owners declare which phases they accept when enabled.
type Phase string

const (
	// PhaseBefore runs ahead of the real operation.
	PhaseBefore Phase = "before"
	// PhaseAfter runs once the real operation returned a result.
	PhaseAfter Phase = "after"
	// PhaseError runs when any earlier step failed.
	PhaseError Phase = "error"
)

// String returns the string representation of the Phase.
func (p Phase) String() string {
	return string(p)
}

// DefaultPhases returns before, after and error.
func DefaultPhases() []Phase {
	return []Phase{PhaseBefore, PhaseAfter, PhaseError}
}

// Params holds query and call options.
type Params map[string]interface{}

// Clone returns a shallow copy. A nil Params clones to an empty one.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Record is the canonical in-flight representation of one operation call
// plus its phase tag.
//
// ID is only populated for get, remove, update and patch. Data is only
// populated for create, update and patch. Params is never nil on a record
// produced by BuildRecord.
type Record struct {
	// Method is the operation kind.
	Method Method
	// Type is the phase the record is travelling through.
	Type Phase
	// ID identifies the target entity.
	ID interface{}
	// Data is the payload to write.
	Data interface{}
	// Params carries query/options for the call.
	Params Params

	// App is the owning application, if the caller supplied one.
	App interface{}
	// Service is the owning service, if the caller supplied one.
	Service interface{}
	// Provider tags the transport the call arrived on ("rest", "socket", ...).
	// Empty for internal calls.
	Provider string

	// Result is the operation result on after-phase records. A before
	// interceptor may set it to skip the real operation.
	Result interface{}
	// Error is the failure that triggered an error-phase record.
	Error error
}

// Clone returns a copy of the record with its own Params map. ID, Data and
// Result are copied by reference.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Params = r.Params.Clone()
	return &out
}

// RecordContext carries the optional owner fields copied onto a record
// when it is built.
type RecordContext struct {
	App      interface{}
	Service  interface{}
	Provider string
}

// IsRecord reports whether v is a Canonical Record: a non-nil *Record or a
// Record value with both Method and Type set.
func IsRecord(v interface{}) bool {
	switch r := v.(type) {
	case *Record:
		return r != nil && r.Method != "" && r.Type != ""
	case Record:
		return r.Method != "" && r.Type != ""
	default:
		return false
	}
}
