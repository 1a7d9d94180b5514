// Package health runs named component probes concurrently and folds them
// into a single report. Critical failures make the report unhealthy.
package health
