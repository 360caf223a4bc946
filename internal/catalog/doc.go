// Package catalog aggregates tool descriptors across the Ready sessions of a
// registry into a per-query Snapshot, tolerating per-session listing
// failures, and renders the snapshot for the decision prompt.
package catalog
