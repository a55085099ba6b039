// Package scheduler holds the recurring lifecycle sweeps: trial expiry
// warnings, expired trial lockout and demo cleanup. The veridian-scheduler
// binary drives them on a cron cadence; every sweep is idempotent and safe
// to run concurrently with another instance.
package scheduler
