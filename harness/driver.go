package harness

import "context"

// Connect starts one player per name against endpoint. See NewRegistry.
func Connect(names []string, endpoint string, opts ...Option) (*Registry, error) {
	return NewRegistry(names, endpoint, opts...)
}

// Send sends msg as a text frame from the named player.
func Send(r *Registry, name, msg string) error {
	return r.SendFrom(name, msg)
}

// Close tears down every player of r.
func Close(ctx context.Context, r *Registry) error {
	return r.Teardown(ctx)
}

// Log returns what the named player has received so far, in arrival order.
func Log(r *Registry, name string) ([]Payload, error) {
	l, err := r.LogFor(name)
	if err != nil {
		return nil, err
	}
	return l.Snapshot(), nil
}
