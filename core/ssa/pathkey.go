package ssa

import (
	"fmt"

	"github.com/parexlabs/parex/common"
	"github.com/parexlabs/parex/crypto"
)

// PathKey identifies one control-flow path through one piece of code: the
// Keccak256 digest of the code paired with the digest of the taken-branch
// trace. Keys are derived, never assembled from arbitrary digests, so two
// equal keys always mean the same code walked the same path.
type PathKey struct {
	code common.Hash
	path common.Hash
}

// NewPathKey derives the key for the given code digest and the branch trace
// recorded while executing it. An empty trace is the straight-line path.
func NewPathKey(codeDigest common.Hash, branchTrace []byte) PathKey {
	return PathKey{code: codeDigest, path: crypto.Keccak256Hash(branchTrace)}
}

func (k PathKey) CodeDigest() common.Hash { return k.code }
func (k PathKey) PathDigest() common.Hash { return k.path }

func (k PathKey) String() string {
	return fmt.Sprintf("%s:%s", k.code, k.path)
}

// pathKeyFromDigests rebuilds a key from its stored digests when decoding a
// snapshot. Internal: the snapshot is the only trusted source of raw digests.
func pathKeyFromDigests(code, path common.Hash) PathKey {
	return PathKey{code: code, path: path}
}
