// Package billing activates billing for organizations whose payment cleared
// after an upgrade or trial conversion. Those transitions leave the
// organization usable with billing pending; activation flips the pending
// flag, grants the one-time token credit and records the Stripe-backed
// subscription. The flip is a conditional update so repeat webhook
// deliveries cannot double-grant the credit.
package billing
