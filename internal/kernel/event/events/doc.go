// Package events defines the host-originated events plugins can observe.
//
// Every token here is exported by name, so script plugins can subscribe with
// event.Lookup("editor.opened") and read payloads through Fields.
package events
