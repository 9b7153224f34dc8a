package domain

// NodeID identifies a node inside a scenario tree arena.
type NodeID int

// NoParent is the parent of the root node.
const NoParent NodeID = -1

// NoScenario marks a decision bundle that is shared by every scenario through its node.
const NoScenario NodeID = -1
