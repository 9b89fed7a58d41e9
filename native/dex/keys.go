package dex

import "github.com/holiman/uint256"

var (
	keyspace      = []byte("dex/")
	paramsKey     = []byte("dex/params")
	protocolKey   = []byte("dex/protocol")
	poolPrefix    = []byte("dex/pool/")
	stakePrefix   = []byte("dex/stake/")
	unbondPrefix  = []byte("dex/unbond/")
	bookPrefix    = []byte("dex/book/")
	pendingPrefix = []byte("dex/pending/")
)

func join(prefix []byte, parts ...string) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, part...)
	}
	return buf
}

func poolKey(asset string) []byte {
	return join(poolPrefix, asset)
}

func stakeKey(pool, user string) []byte {
	return join(stakePrefix, pool, user)
}

func poolStakePrefix(pool string) []byte {
	return append(join(stakePrefix, pool), '/')
}

func unbondKey(pool, user string) []byte {
	return join(unbondPrefix, pool, user)
}

func poolUnbondPrefix(pool string) []byte {
	return append(join(unbondPrefix, pool), '/')
}

// bookSidePrefix is dex/book/<pool>/<side byte>. Levels under it sort by
// price because prices are encoded as fixed-width big-endian integers.
func bookSidePrefix(pool string, side Side) []byte {
	buf := append(join(bookPrefix, pool), '/')
	return append(buf, byte(side))
}

func bookLevelKey(pool string, side Side, price uint256.Int) []byte {
	prefix := bookSidePrefix(pool, side)
	word := price.Bytes32()
	buf := make([]byte, len(prefix)+16)
	copy(buf, prefix)
	copy(buf[len(prefix):], word[16:])
	return buf
}

func pendingKey(id string) []byte {
	return join(pendingPrefix, id)
}
