// Package security gates which kernel surfaces a plugin may reach.
//
// Plugins request capabilities in their manifest. Capabilities are
// hierarchical: granting "kernel" implies "kernel.actions",
// "kernel.events", "kernel.parts" and "kernel.images". The "app"
// capability exposes the signed-in user and service endpoints and is
// never implied.
package security
