/*
Node identity and group arithmetic
*/
package node

// NodeId identifies a single replica within the group. Ids are dense,
// starting at 0, and double as the replica's transport address.
type NodeId uint32

// returns the number of nodes required for a majority
// in a group of the given size
func QuorumSize(groupSize uint32) int {
	return int(groupSize/2) + 1
}
