package ember

// Opcode identifies a bytecode handler. The set below is 62 raw
// opcodes (those of §6 plus ARG) and the 8 peephole-fused variants of
// §4.3, grounded on the teacher's (ozanh/ugo) opcodes.go layout: one
// named constant per opcode, a parallel name table for disassembly, and
// a branch-opcode set consulted by Fprint.
type Opcode byte

const (
	OpStop Opcode = iota

	// control
	OpJmp
	OpJfalse
	OpJtrue
	OpAnd
	OpOr
	OpFor
	OpLoop
	OpUnloop
	OpBreak
	OpContinue
	OpReturn
	OpCall

	// stack shaping
	OpMark
	OpLimit
	OpClean
	OpCopy
	OpShunt
	OpShift
	OpDrop

	// binding / literals
	OpLit
	OpNil
	OpTrue
	OpFalse
	OpFind
	OpGet
	OpSet
	OpAssign
	OpPid
	OpGlobal
	OpArg

	// arithmetic / logical
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpNot
	OpEq
	OpNe
	OpLt
	OpLte
	OpGt
	OpGte
	OpConcat
	OpCount
	OpMatch
	OpUnpack

	// structural
	OpVector
	OpVpush
	OpMap
	OpUnmap
	OpMetaSet
	OpMetaGet

	// coroutines
	OpCoroutine
	OpResume
	OpYield

	// misc core
	OpPrint
	OpSort
	OpAssert
	OpGc
	OpType

	// peephole-fused variants (§4.3)
	OpFname
	OpGname
	OpCfunc
	OpAssignL
	OpAssignP
	OpAddLit
	OpMulLit
	OpUpdate

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	OpStop: "STOP", OpJmp: "JMP", OpJfalse: "JFALSE", OpJtrue: "JTRUE",
	OpAnd: "AND", OpOr: "OR", OpFor: "FOR", OpLoop: "LOOP", OpUnloop: "UNLOOP",
	OpBreak: "BREAK", OpContinue: "CONTINUE", OpReturn: "RETURN", OpCall: "CALL",
	OpMark: "MARK", OpLimit: "LIMIT", OpClean: "CLEAN", OpCopy: "COPY",
	OpShunt: "SHUNT", OpShift: "SHIFT", OpDrop: "DROP",
	OpLit: "LIT", OpNil: "NIL", OpTrue: "TRUE", OpFalse: "FALSE",
	OpFind: "FIND", OpGet: "GET", OpSet: "SET", OpAssign: "ASSIGN",
	OpPid: "PID", OpGlobal: "GLOBAL", OpArg: "ARG",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpMod: "MOD",
	OpNeg: "NEG", OpNot: "NOT", OpEq: "EQ", OpNe: "NE", OpLt: "LT",
	OpLte: "LTE", OpGt: "GT", OpGte: "GTE", OpConcat: "CONCAT",
	OpCount: "COUNT", OpMatch: "MATCH", OpUnpack: "UNPACK",
	OpVector: "VECTOR", OpVpush: "VPUSH", OpMap: "MAP", OpUnmap: "UNMAP",
	OpMetaSet: "META_SET", OpMetaGet: "META_GET",
	OpCoroutine: "COROUTINE", OpResume: "RESUME", OpYield: "YIELD",
	OpPrint: "PRINT", OpSort: "SORT", OpAssert: "ASSERT", OpGc: "GC", OpType: "TYPE",
	OpFname: "FNAME", OpGname: "GNAME", OpCfunc: "CFUNC",
	OpAssignL: "ASSIGNL", OpAssignP: "ASSIGNP",
	OpAddLit: "ADD_LIT", OpMulLit: "MUL_LIT", OpUpdate: "UPDATE",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "UNKNOWN"
}

// branchOpcodes take a target instruction index in Arg (§4.4).
var branchOpcodes = map[Opcode]bool{
	OpJmp: true, OpJfalse: true, OpJtrue: true, OpAnd: true, OpOr: true, OpFor: true,
}

func isBranch(op Opcode) bool { return branchOpcodes[op] }
