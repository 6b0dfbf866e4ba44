package halyard

import "context"

type connectionIDKey struct{}

type routeNameKey struct{}

// ConnectionID returns the id of the connection a handler, layer or
// interceptor context belongs to. It is empty on the client.
func ConnectionID(ctx context.Context) string {
	id, _ := ctx.Value(connectionIDKey{}).(string)
	return id
}

func withConnectionID(ctx context.Context, connectionID string) context.Context {
	return context.WithValue(ctx, connectionIDKey{}, connectionID)
}

// RouteName returns the name of the route being dispatched. Layers use it
// to act on some routes without blocking the others.
func RouteName(ctx context.Context) string {
	name, _ := ctx.Value(routeNameKey{}).(string)
	return name
}

func withRouteName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, routeNameKey{}, name)
}
