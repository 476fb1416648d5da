package mirror

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// EntityID is a "shard.realm.num" ledger entity identifier.
type EntityID struct {
	Shard int64
	Realm int64
	Num   int64
}

// ParseEntityID parses "shard.realm.num".
func ParseEntityID(s string) (EntityID, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return EntityID{}, fmt.Errorf("invalid entity id %q", s)
	}
	var vals [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return EntityID{}, fmt.Errorf("invalid entity id %q", s)
		}
		vals[i] = v
	}
	return EntityID{Shard: vals[0], Realm: vals[1], Num: vals[2]}, nil
}

func (e EntityID) String() string {
	return fmt.Sprintf("%d.%d.%d", e.Shard, e.Realm, e.Num)
}

// EVMAddress returns the long-zero EVM address of the entity:
// 4 bytes shard, 8 bytes realm, 8 bytes num.
func (e EntityID) EVMAddress() string {
	var b [20]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(e.Shard))
	binary.BigEndian.PutUint64(b[4:12], uint64(e.Realm))
	binary.BigEndian.PutUint64(b[12:20], uint64(e.Num))
	return "0x" + hex.EncodeToString(b[:])
}

// EntityIDFromEVMAddress reverses EVMAddress. It fails for addresses that are
// not long-zero, such as ECDSA aliases.
func EntityIDFromEVMAddress(addr string) (EntityID, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(addr), "0x"))
	if err != nil || len(raw) != 20 {
		return EntityID{}, fmt.Errorf("invalid evm address %q", addr)
	}
	realm := binary.BigEndian.Uint64(raw[4:12])
	num := binary.BigEndian.Uint64(raw[12:20])
	shard := binary.BigEndian.Uint32(raw[0:4])
	if realm > 1<<40 || num > 1<<48 {
		return EntityID{}, fmt.Errorf("%s is not a long-zero address", addr)
	}
	return EntityID{Shard: int64(shard), Realm: int64(realm), Num: int64(num)}, nil
}

// IsEVMAddress reports whether s looks like a 0x-prefixed 20-byte address.
func IsEVMAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && len(s) == 42
}
