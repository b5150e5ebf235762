// Package notifier forwards newly materialized alerts out-of-band.
//
// The engine itself only maintains the in-app alert set; this service
// subscribes to alert.created events and pushes the ones at or above a
// configured severity to an external channel (Telegram). Delivery is
// best-effort and fully decoupled: a slow or failing channel can never
// stall an evaluation tick.
package notifier
