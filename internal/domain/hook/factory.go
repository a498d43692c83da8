package hook

// BuildRecord creates the canonical record for one call of method in phase.
// Fields are populated by the method's argument converter, the owner fields
// are copied from rc, and Method and Type are stamped last.
//
// Returns ErrUnknownMethod when method is not one of the recognized kinds.
func BuildRecord(method Method, phase Phase, args []interface{}, rc RecordContext) (*Record, error) {
	rec, err := ToRecord(method, args)
	if err != nil {
		return nil, err
	}

	rec.App = rc.App
	rec.Service = rc.Service
	rec.Provider = rc.Provider

	rec.Method = method
	rec.Type = phase
	return rec, nil
}
