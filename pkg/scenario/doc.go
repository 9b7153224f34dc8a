/*
Package scenario represents how uncertainty resolves over planning stages.

A Tree is an arena of nodes indexed by domain.NodeID; parents and children are stored as
identifiers so traversal works in both directions without ownership cycles. Nodes are only
ever created as children of existing nodes, so a tree cannot contain cycles.

Trees are built from a BranchingSpec (stage-by-stage branch functions), node by node with a
Builder, from a serializable Description, or by a seeded RandomWalk. Truncate derives a
smaller tree whose tail beyond a stage is replaced by averaged synthetic nodes.
*/
package scenario
