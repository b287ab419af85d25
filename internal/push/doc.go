// Package push fans a notification out to the Web Push subscriptions of a
// recipient that is not currently connected, and unregisters subscriptions
// whose push service rejects them permanently.
//
// Every network call is submitted and detached: Push and DeliverSingle return
// before any delivery completes and never report delivery errors to the
// caller. Drain waits for in-flight deliveries on shutdown.
package push
