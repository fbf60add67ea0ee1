// Package simulation runs the conviction voting model end to end.
//
// A Simulation is built from a config.Config: it opens the commons from the
// hatch, bootstraps the initial network, and drives the block pipeline one
// step (one day) at a time. Each step is summarized into the in-memory
// history and, when configured, persisted to a store.HistoryStore, exported
// as Prometheus metrics and traced to the decision log.
//
// The package also provides a test harness for property checks over whole
// runs. Each Runner gets an isolated SQLite database via t.TempDir() and a
// sandboxed HOME to prevent touching user data.
//
// Usage:
//
//	func TestBudget(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:  "budget",
//	        Seed:  7,
//	        Steps: 120,
//	    })
//	    simulation.AssertBudgetRespected(t, result)
//	}
package simulation
