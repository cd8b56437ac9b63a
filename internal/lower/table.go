package lower

import (
	"github.com/hassan/decomp6502/internal/asm"
	"github.com/hassan/decomp6502/internal/ir"
)

type rule func(c *ctx)

// rules is the lowering table, one entry per opcode. Opcodes without an
// entry (NOP, JMP, RTS, branches) define nothing.
var rules [asm.TYA + 1]rule

func init() {
	// Loads
	rules[asm.LDA] = load(ir.A)
	rules[asm.LDX] = load(ir.X)
	rules[asm.LDY] = load(ir.Y)

	// Stores
	rules[asm.STA] = store(ir.A)
	rules[asm.STX] = store(ir.X)
	rules[asm.STY] = store(ir.Y)

	// Transfers
	rules[asm.TAX] = transfer(ir.A, ir.X)
	rules[asm.TAY] = transfer(ir.A, ir.Y)
	rules[asm.TXA] = transfer(ir.X, ir.A)
	rules[asm.TYA] = transfer(ir.Y, ir.A)
	rules[asm.TSX] = func(c *ctx) {
		x := c.def(ir.X, &ir.Opaque{What: "S"})
		c.nz(x, nil)
	}

	// Arithmetic and logic
	rules[asm.ADC] = adc
	rules[asm.SBC] = sbc
	rules[asm.AND] = logic(ir.OpAnd)
	rules[asm.ORA] = logic(ir.OpOr)
	rules[asm.EOR] = logic(ir.OpXor)

	// Shifts and rotates
	rules[asm.ASL] = asl
	rules[asm.LSR] = lsr
	rules[asm.ROL] = rol
	rules[asm.ROR] = ror

	// Compares
	rules[asm.CMP] = compare(ir.A)
	rules[asm.CPX] = compare(ir.X)
	rules[asm.CPY] = compare(ir.Y)
	rules[asm.BIT] = bitTest

	// Increments and decrements
	rules[asm.INC] = step(nil, ir.OpAdd)
	rules[asm.DEC] = step(nil, ir.OpSub)
	rules[asm.INX] = step(&ir.X, ir.OpAdd)
	rules[asm.DEX] = step(&ir.X, ir.OpSub)
	rules[asm.INY] = step(&ir.Y, ir.OpAdd)
	rules[asm.DEY] = step(&ir.Y, ir.OpSub)

	// Flags
	rules[asm.CLC] = setFlag(ir.C, false)
	rules[asm.SEC] = setFlag(ir.C, true)
	rules[asm.CLI] = setFlag(ir.I, false)
	rules[asm.SEI] = setFlag(ir.I, true)
	rules[asm.CLD] = setFlag(ir.D, false)
	rules[asm.SED] = setFlag(ir.D, true)
	rules[asm.CLV] = setFlag(ir.V, false)

	// Stack
	rules[asm.PHA] = func(c *ctx) {
		c.step.Stores = append(c.step.Stores, ir.Store{Value: c.read(ir.A)})
	}
	rules[asm.PHP] = func(c *ctx) {
		c.step.Stores = append(c.step.Stores, ir.Store{Value: &ir.Opaque{What: "P"}})
	}
	rules[asm.PLA] = func(c *ctx) {
		a := c.def(ir.A, &ir.Opaque{What: "pull()"})
		c.nz(a, nil)
	}
	rules[asm.PLP] = pullStatus
	rules[asm.RTI] = pullStatus

	// Control
	rules[asm.BRK] = setFlag(ir.I, true)
	rules[asm.JSR] = call
}

func load(r ir.Base) rule {
	return func(c *ctx) {
		v := c.def(r, c.operand())
		c.nz(v, nil)
	}
}

func store(r ir.Base) rule {
	return func(c *ctx) {
		c.write(c.read(r))
	}
}

// transfer defines dst as a reference to src, with no folding.
func transfer(src, dst ir.Base) rule {
	return func(c *ctx) {
		v := c.def(dst, c.read(src))
		c.nz(v, nil)
	}
}

// adc: sum = A + M + C; C' = sum > 0xFF; A' = sum & 0xFF;
// V' = ((A ^ A') & (M ^ A') & 0x80) != 0. Decimal mode is not modeled.
func adc(c *ctx) {
	a, m := c.read(ir.A), c.operand()
	sum := ir.Bin(ir.OpAdd, ir.Bin(ir.OpAdd, a, m), carryIn(c, 1, 0))

	c.def(ir.C, ir.Bin(ir.OpGt, sum, ir.Int(0xFF)))
	res := c.def(ir.A, byteOf(sum))
	c.def(ir.V, bit(ir.Bin(ir.OpAnd,
		ir.Bin(ir.OpXor, a, ir.Use(res)),
		ir.Bin(ir.OpXor, m, ir.Use(res))), 0x80))
	c.nz(res, nil)
}

// sbc: diff = A - M - !C; C' = diff >= 0; A' = diff & 0xFF;
// V' = ((A ^ M) & (A ^ A') & 0x80) != 0.
func sbc(c *ctx) {
	a, m := c.read(ir.A), c.operand()
	diff := ir.Bin(ir.OpSub, ir.Bin(ir.OpSub, a, m), carryIn(c, 0, 1))

	c.def(ir.C, ir.Bin(ir.OpGe, diff, ir.Int(0)))
	res := c.def(ir.A, byteOf(diff))
	c.def(ir.V, bit(ir.Bin(ir.OpAnd,
		ir.Bin(ir.OpXor, a, m),
		ir.Bin(ir.OpXor, a, ir.Use(res))), 0x80))
	c.nz(res, nil)
}

// carryIn is (C ? set : clear) over the incoming carry.
func carryIn(c *ctx, set, clear int) ir.Expr {
	return &ir.Select{Cond: c.read(ir.C), Then: ir.Int(set), Else: ir.Int(clear)}
}

func logic(op ir.BinOp) rule {
	return func(c *ctx) {
		v := c.def(ir.A, ir.Bin(op, c.read(ir.A), c.operand()))
		c.nz(v, nil)
	}
}

// shift defines the carry from the value before the shift, then the
// result, then Z and N.
func shift(c *ctx, carryMask int, result func(v ir.Expr) ir.Expr) {
	v := c.operand()
	c.def(ir.C, bit(v, carryMask))
	e := result(v)
	c.nz(c.write(e), e)
}

func asl(c *ctx) {
	shift(c, 0x80, func(v ir.Expr) ir.Expr {
		return byteOf(ir.Bin(ir.OpShl, v, ir.Int(1)))
	})
}

func lsr(c *ctx) {
	v := c.operand()
	c.def(ir.C, bit(v, 0x01))
	e := ir.Bin(ir.OpShr, v, ir.Int(1))
	res := c.write(e)
	if res != nil {
		e = ir.Use(res)
	}
	c.def(ir.Z, ir.Bin(ir.OpEq, e, ir.Int(0)))
	c.def(ir.N, ir.Flag(false))
}

func rol(c *ctx) {
	carry := carryIn(c, 1, 0)
	shift(c, 0x80, func(v ir.Expr) ir.Expr {
		return byteOf(ir.Bin(ir.OpOr, ir.Bin(ir.OpShl, v, ir.Int(1)), carry))
	})
}

func ror(c *ctx) {
	carry := carryIn(c, 0x80, 0)
	shift(c, 0x01, func(v ir.Expr) ir.Expr {
		return ir.Bin(ir.OpOr, ir.Bin(ir.OpShr, v, ir.Int(1)), carry)
	})
}

// compare writes C, Z and N only; the compared register keeps its value.
func compare(r ir.Base) rule {
	return func(c *ctx) {
		reg, m := c.read(r), c.operand()
		c.def(ir.C, ir.Bin(ir.OpGe, reg, m))
		c.def(ir.Z, ir.Bin(ir.OpEq, reg, m))
		c.def(ir.N, bit(ir.Bin(ir.OpSub, reg, m), 0x80))
	}
}

// bitTest: Z' = (A & M) == 0, N' = bit 7 of M, V' = bit 6 of M.
func bitTest(c *ctx) {
	a, m := c.read(ir.A), c.operand()
	c.def(ir.Z, ir.Bin(ir.OpEq, ir.Bin(ir.OpAnd, a, m), ir.Int(0)))
	c.def(ir.N, bit(m, 0x80))
	c.def(ir.V, bit(m, 0x40))
}

// step increments or decrements a register, or the memory operand when
// reg is nil.
func step(reg *ir.Base, op ir.BinOp) rule {
	return func(c *ctx) {
		if reg != nil {
			v := c.def(*reg, byteOf(ir.Bin(op, c.read(*reg), ir.Int(1))))
			c.nz(v, nil)
			return
		}
		e := byteOf(ir.Bin(op, c.operand(), ir.Int(1)))
		c.nz(c.write(e), e)
	}
}

func setFlag(f ir.Base, value bool) rule {
	return func(c *ctx) {
		c.def(f, ir.Flag(value))
	}
}

func pullStatus(c *ctx) {
	for _, f := range ir.Flags {
		c.def(f, &ir.Opaque{What: "pull()." + f.VarName()})
	}
}

// call replaces every caller-saved base and every tracked memory cell with
// the opaque result of the subroutine.
func call(c *ctx) {
	target := c.ins.Operand.Address()
	for _, b := range ir.CallerSaved {
		c.def(b, &ir.Call{Target: target, Base: b})
	}
	for _, b := range c.env.Tracked() {
		c.def(b, &ir.Call{Target: target, Base: b})
	}
}
