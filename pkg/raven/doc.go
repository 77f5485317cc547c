// Package raven is a client for reporting errors and messages to a Sentry
// server.
//
// A Client turns messages, errors and recovered panics into Sentry events,
// enriches them with scope data and sends them in the background over the
// transport selected by the DSN scheme.
//
// # Core Components
//
//   - Client: capture entry points, callbacks, observers and lifecycle
//   - Event: the wire model, serialized with cycle-safe JSON
//   - Scope: tags, extra, user and breadcrumbs, global or local to a context
//   - Observer: delivery outcomes (logged or error) per event id
//   - Scrubber: optional fail-closed redaction installed as a data callback
//
// # Quick Start
//
//	client, err := raven.New(raven.WithDSN(os.Getenv("SENTRY_DSN")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.RunScoped(ctx, func(ctx context.Context) {
//	    client.SetUserContext(ctx, &raven.User{ID: "42"})
//	    defer raven.Recover(ctx, client)
//	    if err := work(ctx); err != nil {
//	        client.CaptureError(ctx, err, nil)
//	    }
//	})
//
// # Design Principles
//
//   - Capture calls never fail and never block on the network
//   - A client without a DSN is disabled and does nothing
//   - Local scopes travel in context.Context; nothing is goroutine-local
package raven
