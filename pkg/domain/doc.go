/*
Package domain contains the core data model of the plantopt planning engine.

It describes the refinery (inputs, processes, products and yields), the realization
payloads carried by scenario-tree nodes, the per-node decision values produced by a solve
and the results and outcomes handed to reporting. This package is kept pure and free of
solver, I/O or persistence concerns.

# Key Entities

  - ResourceSpec: the static refinery description (costs, prices, capacities, yields).
  - Payload: the stochastic realization of a node (demand, price, cost shocks).
  - DecisionBundle: solved variable values attached to one node (or one scenario copy).
  - SolveResult: status, objective and bundles of one solve.
  - Outcome: expected value, per-scenario values and comparison metrics.
*/
package domain
