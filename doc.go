// Package continuum provides a deterministic, crash-safe runtime for
// long-lived "world" state machines.
//
// A world's sole source of truth is its append-only journal; a pure kernel
// folds journal records into state, and every external effect, timer and
// cross-world message travels through a durable, idempotent delivery
// pipeline anchored on content-derived intent hashes.  Single-writer
// discipline is enforced by epoch-fenced leases, and snapshots with promoted
// baselines keep restores cheap while the replay-or-die check guards the
// determinism contract.
//
// Continuum is designed to be embedded in host applications.  End-users
// typically interact with the engine via the high-level Service façade
// exposed by the root package:
//
//	srv, _ := continuum.New(continuum.WithModules(orderModule))
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	world := model.NewWorldID("prod", "orders")
//	loop, _ := rt.CreateWorld(ctx, world, manifest)
//	_ = rt.SubmitEvent(ctx, world, ingress)
//
// For more details see the README and individual sub-packages.
package continuum
