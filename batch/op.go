package batch

// opKind discriminates the operation union spec.md §4.1 describes.
type opKind uint8

const (
	opAccountID opKind = iota
	opCollection
	opDocumentID
	opValue
	opIndex
	opLog
	opAssertValue
	opCommitPoint
	opAssignChangeID
)

// valueOpKind is the Value operation's inner op, spec.md §4.1's
// `op ∈ {Set, SetFnc, MergeFnc, AtomicAdd, AddAndGet, Clear}`.
type valueOpKind uint8

const (
	valueSet valueOpKind = iota
	valueSetFnc
	valueMergeFnc
	valueAtomicAdd
	valueAddAndGet
	valueClear
)

// MergeResult is what a MergeFnc returns: update the value, delete it, or
// leave it untouched.
type MergeResult struct {
	kind  mergeResultKind
	Value []byte
}

type mergeResultKind uint8

const (
	mergeUpdate mergeResultKind = iota
	mergeDelete
	mergeSkip
)

func MergeUpdate(value []byte) MergeResult { return MergeResult{kind: mergeUpdate, Value: value} }
func MergeDelete() MergeResult             { return MergeResult{kind: mergeDelete} }
func MergeSkip() MergeResult               { return MergeResult{kind: mergeSkip} }

// Params are the caller-supplied arguments threaded through to a SetFnc or
// MergeFnc closure untouched by the runtime.
type Params any

// AssignedIds carries the ids the current commit has minted so far, across
// all of its commit-point segments: per-account change ids, counter
// results, and the document id of the operation being applied. SetFnc closures use it to embed a freshly
// minted change id inside the bytes they compose (spec.md §4.1/§9).
type AssignedIds struct {
	changeIDs map[uint32]uint64
	counters  []int64
	documentID uint32
}

func newAssignedIds() *AssignedIds {
	return &AssignedIds{changeIDs: make(map[uint32]uint64)}
}

// CurrentChangeID returns the change id assigned to accountID during this
// commit, or 0 if the account had no logged changes.
func (a *AssignedIds) CurrentChangeID(accountID uint32) uint64 {
	return a.changeIDs[accountID]
}

// DocumentID returns the document id the batch cursor currently points at.
func (a *AssignedIds) DocumentID() uint32 { return a.documentID }

// LastCounter returns the most recent AddAndGet result in this commit.
func (a *AssignedIds) LastCounter() (int64, bool) {
	if len(a.counters) == 0 {
		return 0, false
	}
	return a.counters[len(a.counters)-1], true
}

func (a *AssignedIds) pushCounter(v int64) { a.counters = append(a.counters, v) }

// SetFnc composes bytes for a value with no dependency on the value's
// previous contents - used when the bytes depend on newly assigned ids
// (e.g. embedding the freshly minted change-id at a fixed offset).
type SetFnc func(params Params, ids *AssignedIds) ([]byte, error)

// MergeFnc reads the existing value (nil if absent) and decides whether to
// update, delete, or skip. The runtime invokes it once per commit attempt,
// inside the transaction, against the latest committed state.
type MergeFnc func(params Params, ids *AssignedIds, existing []byte) (MergeResult, error)

type valueOp struct {
	kind    valueOpKind
	bytes   []byte
	delta   int64
	setFnc  SetFnc
	mergeFnc MergeFnc
	params  Params
}

// operation is one entry in a Builder's accumulated, ordered op sequence.
type operation struct {
	kind opKind

	accountID   uint32
	collection  uint8
	documentID  uint32

	class ValueClass
	value valueOp

	// Index
	field       uint8
	indexKey    []byte
	set         bool
	isBitmapTag bool

	// Log
	logCollection uint8
	logIsVanished bool
	logPayload    []byte

	// AssertValue
	assertClass ValueClass
	assertBytes []byte
	assertAbsent bool
}
