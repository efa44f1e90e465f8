package llm

import "context"

type systemKey struct{}

// WithSystemName tags ctx with the divination system a request serves, for metric labels.
func WithSystemName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, systemKey{}, name)
}

// SystemNameFrom returns the system tag of ctx, or "chat" when untagged.
func SystemNameFrom(ctx context.Context) string {
	if name, ok := ctx.Value(systemKey{}).(string); ok && name != "" {
		return name
	}
	return "chat"
}
