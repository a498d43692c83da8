package hook

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry is the per-owner store of phase -> method -> ordered interceptors.
// Its phase keys are fixed at creation; the lists only ever grow.
// Thread-safe for concurrent access via sync.RWMutex.
type Registry struct {
	mu      sync.RWMutex
	methods []Method
	phases  []Phase
	hooks   map[Phase]map[Method][]Interceptor
}

// NewRegistry creates a registry accepting the given methods and phases.
// Empty arguments fall back to AllMethods and DefaultPhases.
func NewRegistry(methods []Method, phases []Phase) *Registry {
	if len(methods) == 0 {
		methods = AllMethods()
	}
	if len(phases) == 0 {
		phases = DefaultPhases()
	}

	r := &Registry{
		methods: append([]Method(nil), methods...),
		phases:  append([]Phase(nil), phases...),
		hooks:   make(map[Phase]map[Method][]Interceptor, len(phases)),
	}
	for _, p := range r.phases {
		r.hooks[p] = make(map[Method][]Interceptor)
	}
	return r
}

// Methods returns the recognized methods in declaration order.
func (r *Registry) Methods() []Method {
	return append([]Method(nil), r.methods...)
}

// Phases returns the declared phases in declaration order.
func (r *Registry) Phases() []Phase {
	return append([]Phase(nil), r.phases...)
}

// Register appends interceptors per phase. Each input is normalized with
// NormalizeRegistration; for every recognized method named directly or via
// "all", the "all" interceptors are appended first, then the method's own.
//
// The whole call is validated before anything is stored: an undeclared
// phase fails with ErrInvalidHookType and an unrecognized method key with
// ErrInvalidHookMethod, leaving the registry untouched.
func (r *Registry) Register(phaseToInput map[Phase]interface{}) error {
	normalized := make(map[Phase]map[string][]Interceptor, len(phaseToInput))
	for phase, input := range phaseToInput {
		if _, ok := r.hooks[phase]; !ok {
			return fmt.Errorf("%w: %q is not one of %v", ErrInvalidHookType, phase, r.phases)
		}

		byMethod, err := NormalizeRegistration(input)
		if err != nil {
			return fmt.Errorf("%s hooks: %w", phase, err)
		}
		for key := range byMethod {
			if key != MethodAll && !r.recognizes(Method(key)) {
				return fmt.Errorf("%w: %q for %s hooks", ErrInvalidHookMethod, key, phase)
			}
		}
		normalized[phase] = byMethod
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, phase := range r.phases {
		byMethod, ok := normalized[phase]
		if !ok {
			continue
		}
		all, hasAll := byMethod[MethodAll]
		for _, m := range r.methods {
			own, hasOwn := byMethod[string(m)]
			if !hasAll && !hasOwn {
				continue
			}
			list := r.hooks[phase][m]
			list = append(list, all...)
			list = append(list, own...)
			r.hooks[phase][m] = list
		}
	}
	return nil
}

// Lookup returns a copy of the interceptors registered for phase and method.
// A nil registry has no interceptors.
func (r *Registry) Lookup(phase Phase, method Method) []Interceptor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.hooks[phase][method]
	if len(list) == 0 {
		return nil
	}
	return append([]Interceptor(nil), list...)
}

func (r *Registry) recognizes(m Method) bool {
	for _, known := range r.methods {
		if known == m {
			return true
		}
	}
	return false
}

// Hookable is implemented by owners that carry a Registry: the application
// and each registered service.
type Hookable interface {
	HookRegistry() *Registry
}

// Host equips an owner with a Registry. Embed it in application and service
// types to make them Hookable.
type Host struct {
	once     sync.Once
	registry *Registry
}

// Compile-time check that Host implements Hookable.
var _ Hookable = (*Host)(nil)

// Enable creates the host's registry on first call. Later calls are no-ops
// and return the registry created by the first one.
func (h *Host) Enable(methods []Method, phases []Phase) *Registry {
	h.once.Do(func() {
		h.registry = NewRegistry(methods, phases)
	})
	return h.registry
}

// HookRegistry returns the host's registry, or nil when not enabled.
func (h *Host) HookRegistry() *Registry {
	if h == nil {
		return nil
	}
	return h.registry
}

// Hooks registers interceptors on the host. See Registry.Register.
func (h *Host) Hooks(phaseToInput map[Phase]interface{}) error {
	reg := h.HookRegistry()
	if reg == nil {
		return ErrNotEnabled
	}
	return reg.Register(phaseToInput)
}

// Enable idempotently equips h with a registry and returns h.
func Enable(h *Host, methods []Method, phases []Phase) *Host {
	h.Enable(methods, phases)
	return h
}

// Order selects how Collect merges application and service interceptors.
type Order int

const (
	// ServiceFirst places service interceptors ahead of application ones.
	ServiceFirst Order = iota
	// AppFirst places application interceptors ahead of service ones.
	AppFirst
)

// Collect returns the interceptors for phase and method from both owners,
// concatenated in the given order. Either owner may be nil, a typed nil
// pointer, or not enabled.
func Collect(app, service Hookable, phase Phase, method Method, order Order) []Interceptor {
	appList := lookup(app, phase, method)
	serviceList := lookup(service, phase, method)

	out := make([]Interceptor, 0, len(appList)+len(serviceList))
	if order == AppFirst {
		out = append(out, appList...)
		return append(out, serviceList...)
	}
	out = append(out, serviceList...)
	return append(out, appList...)
}

func lookup(owner Hookable, phase Phase, method Method) []Interceptor {
	if owner == nil {
		return nil
	}
	if v := reflect.ValueOf(owner); v.Kind() == reflect.Ptr && v.IsNil() {
		return nil
	}
	return owner.HookRegistry().Lookup(phase, method)
}
