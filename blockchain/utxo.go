package blockchain

import (
	"sort"
)

// InactivityPeriod is how long an output may stay unspent before it is
// reclaimed: 100 years of 365 days.
const InactivityPeriod int64 = 100 * 365 * 24 * 60 * 60

// UTXO is an unspent output together with its outpoint.
type UTXO struct {
	TxID   string
	Index  int
	Output TxOutput
}

// UTXOSet indexes unspent outputs by transaction id. It is always derived
// from the chain and never stored on its own.
type UTXOSet struct {
	utxos map[string][]UTXO
}

func NewUTXOSet() *UTXOSet {
	return &UTXOSet{utxos: make(map[string][]UTXO)}
}

// FromBlockchain derives the set from scratch by walking the chain from the
// tip backwards, remembering every outpoint consumed by a later input.
func FromBlockchain(blocks []Block) *UTXOSet {
	set := NewUTXOSet()
	spentTXOs := make(map[string][]int)

	var (
		latest    int64
		haveLater bool
	)
	for i := len(blocks) - 1; i >= 0; i-- {
		block := &blocks[i]

		txs, err := block.Transactions()
		if err == nil {
			for j := len(txs) - 1; j >= 0; j-- {
				tx := txs[j]

			Outputs:
				for outIdx, out := range tx.Outputs {
					for _, spentOut := range spentTXOs[tx.ID] {
						if spentOut == outIdx {
							continue Outputs
						}
					}
					if haveLater && latest-out.CreatedAt >= InactivityPeriod {
						continue
					}
					set.Add(tx.ID, outIdx, out)
				}
				if !tx.IsCoinbase() {
					for _, in := range tx.Inputs {
						spentTXOs[in.TxID] = append(spentTXOs[in.TxID], in.Index)
					}
				}
			}
		}

		if block.Index != 0 && (!haveLater || block.Timestamp > latest) {
			latest = block.Timestamp
			haveLater = true
		}
	}

	return set
}

// FromChainSegment replays blocks in order on an empty set.
func FromChainSegment(blocks []Block) *UTXOSet {
	set := NewUTXOSet()
	for i := range blocks {
		set.Apply(&blocks[i])
	}
	return set
}

// Apply advances the set by one block: dormant outputs are reclaimed as of
// the block time, then each transaction consumes its inputs and adds its
// outputs. A block whose data does not decode only reclaims.
func (u *UTXOSet) Apply(b *Block) {
	if b.Index != 0 {
		u.Reclaim(b.Timestamp)
	}

	txs, err := b.Transactions()
	if err != nil {
		return
	}
	for _, tx := range txs {
		u.applyTransaction(tx)
	}
}

func (u *UTXOSet) applyTransaction(tx *Transaction) {
	if !tx.IsCoinbase() {
		for _, in := range tx.Inputs {
			u.Remove(in.TxID, in.Index)
		}
	}
	for outIdx, out := range tx.Outputs {
		u.Add(tx.ID, outIdx, out)
	}
}

// Add records an unspent output, keeping each transaction's outputs ordered by index.
func (u *UTXOSet) Add(txid string, index int, out TxOutput) {
	outs := u.utxos[txid]
	pos := sort.Search(len(outs), func(i int) bool { return outs[i].Index >= index })
	if pos < len(outs) && outs[pos].Index == index {
		outs[pos].Output = out
		return
	}
	outs = append(outs, UTXO{})
	copy(outs[pos+1:], outs[pos:])
	outs[pos] = UTXO{TxID: txid, Index: index, Output: out}
	u.utxos[txid] = outs
}

// Remove marks (txid, index) as spent. It reports whether the output was unspent.
func (u *UTXOSet) Remove(txid string, index int) bool {
	outs, ok := u.utxos[txid]
	if !ok {
		return false
	}
	for i, utxo := range outs {
		if utxo.Index != index {
			continue
		}
		outs = append(outs[:i], outs[i+1:]...)
		if len(outs) == 0 {
			delete(u.utxos, txid)
		} else {
			u.utxos[txid] = outs
		}
		return true
	}
	return false
}

func (u *UTXOSet) Get(txid string, index int) (TxOutput, bool) {
	for _, utxo := range u.utxos[txid] {
		if utxo.Index == index {
			return utxo.Output, true
		}
	}
	return TxOutput{}, false
}

// All enumerates the set ordered by txid then index.
func (u *UTXOSet) All() []UTXO {
	txids := make([]string, 0, len(u.utxos))
	for txid := range u.utxos {
		txids = append(txids, txid)
	}
	sort.Strings(txids)

	var all []UTXO
	for _, txid := range txids {
		all = append(all, u.utxos[txid]...)
	}
	return all
}

func (u *UTXOSet) FindByAddress(address string) []UTXO {
	var results []UTXO
	for _, utxo := range u.All() {
		if utxo.Output.IsLockedWith(address) {
			results = append(results, utxo)
		}
	}
	return results
}

func (u *UTXOSet) Balance(address string) uint64 {
	var balance uint64
	for _, utxo := range u.FindByAddress(address) {
		balance += utxo.Output.Value
	}
	return balance
}

// Count returns the number of unspent outputs.
func (u *UTXOSet) Count() int {
	count := 0
	for _, outs := range u.utxos {
		count += len(outs)
	}
	return count
}

// Total is the value of every unspent output.
func (u *UTXOSet) Total() uint64 {
	var total uint64
	for _, outs := range u.utxos {
		for _, utxo := range outs {
			total += utxo.Output.Value
		}
	}
	return total
}

// Inactive lists outputs that have been unspent for at least InactivityPeriod at now.
func (u *UTXOSet) Inactive(now int64) []UTXO {
	var inactive []UTXO
	for _, utxo := range u.All() {
		if now-utxo.Output.CreatedAt >= InactivityPeriod {
			inactive = append(inactive, utxo)
		}
	}
	return inactive
}

// Reclaim removes every inactive output and returns their summed value.
func (u *UTXOSet) Reclaim(now int64) uint64 {
	var reclaimed uint64
	for _, utxo := range u.Inactive(now) {
		u.Remove(utxo.TxID, utxo.Index)
		reclaimed += utxo.Output.Value
	}
	return reclaimed
}

func (u *UTXOSet) Clone() *UTXOSet {
	clone := &UTXOSet{utxos: make(map[string][]UTXO, len(u.utxos))}
	for txid, outs := range u.utxos {
		clone.utxos[txid] = append([]UTXO(nil), outs...)
	}
	return clone
}
