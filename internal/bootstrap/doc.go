// Package bootstrap runs registered initialization units in priority order
// while honouring declared dependencies between unit kinds.
//
// Priorities partition units into layers. Within a layer, units whose
// dependencies have completed are dispatched in registration order; the rest
// wait until an asynchronous unit completes and the layer is retried. The next
// layer starts once every unit of the current one has been dispatched.
// Asynchronous units started in earlier layers keep running and only have to
// finish before Run returns or before a unit depending on them is dispatched.
//
// All scheduling state is owned by the goroutine calling Manager.Run.
// Asynchronous units run on their own goroutines and report completion over a
// channel that Run drains at its yield points, so no locks guard the
// completed and running sets.
package bootstrap
