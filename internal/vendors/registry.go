package vendors

import "fmt"

// Name identifies an upstream data vendor.
type Name string

const (
	Incode   Name = "incode"
	Idology  Name = "idology"
	Experian Name = "experian"
	Middesk  Name = "middesk"
	Lexis    Name = "lexis"
)

// API identifies one vendor endpoint. Verification records and idempotency lookups are
// keyed by it.
type API string

const (
	IncodeStartOnboarding API = "incode_start_onboarding"
	IncodeAddConsent      API = "incode_add_consent"
	IncodeAddFront        API = "incode_add_front"
	IncodeAddBack         API = "incode_add_back"
	IncodeProcessID       API = "incode_process_id"
	IncodeFetchScores     API = "incode_fetch_scores"
	IncodeFetchOCR        API = "incode_fetch_ocr"

	IdologyExpectID     API = "idology_expectid"
	ExperianPreciseID   API = "experian_precise_id"
	MiddeskCreateOrder  API = "middesk_create_business"
	MiddeskGetBusiness  API = "middesk_get_business"
	LexisBusinessID     API = "lexis_business_id"
	LexisBusinessResult API = "lexis_business_result"
)

// Capability groups vendors by the evidence they produce.
type Capability string

const (
	CapabilityIdentity Capability = "identity"
	CapabilityDocument Capability = "document"
	CapabilityBusiness Capability = "business"
)

// Named is implemented by every vendor client the registry holds.
type Named interface {
	Name() Name
}

// Registry keeps vendor clients in registration order. Order matters: waterfall arbitration
// breaks ties by input order.
type Registry[T Named] struct {
	order   []Name
	clients map[Name]T
}

func NewRegistry[T Named]() *Registry[T] {
	return &Registry[T]{clients: make(map[Name]T)}
}

// Register adds a client to the registry
func (r *Registry[T]) Register(client T) error {
	name := client.Name()
	if _, exists := r.clients[name]; exists {
		return fmt.Errorf("vendor %s already registered", name)
	}
	r.clients[name] = client
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a client by name
func (r *Registry[T]) Get(name Name) (T, bool) {
	c, ok := r.clients[name]
	return c, ok
}

// All returns the registered clients in registration order.
func (r *Registry[T]) All() []T {
	out := make([]T, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.clients[name])
	}
	return out
}

func (r *Registry[T]) Len() int { return len(r.order) }
