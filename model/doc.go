// Package model defines the persisted data model shared by every runtime
// subsystem: journal records, effect/timer/fabric intents, receipts, workflow
// instances and world manifests.  All types in this package are plain data –
// behaviour lives in the kernel and the service layers.
package model
