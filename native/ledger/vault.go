package ledger

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

// ModuleVault derives the deterministic custody address used by a
// settlement module to hold funds in flight. The address has no known
// key; only module code can move balances out of it.
func ModuleVault(module string) [20]byte {
	hash := ethcrypto.Keccak256([]byte("agora/vault/" + module))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}
