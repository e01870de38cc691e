// Package event provides the kernel's typed event bus.
//
// Events are identified by token rather than by topic string. A token is a
// *Type[E] created once with NewType; two tokens never collide even when
// they carry the same payload type or name:
//
//	var Saved = event.NewType[SavedEvent]("editor.saved")
//
//	d, err := event.AddHandler(bus, Saved, func(ctx context.Context, e SavedEvent) error {
//		...
//	})
//
//	res := event.Fire(ctx, bus, Saved, SavedEvent{File: "main.go"})
//
// Dispatch is synchronous and runs handlers in registration order against a
// snapshot of the subscriptions taken when the fire starts. A handler that
// fails or panics is logged and counted; the rest still run and the caller
// only sees the Result summary.
//
// Tokens that script plugins may subscribe to by name are published with
// Export and found again with Lookup.
package event
