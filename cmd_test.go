package amuse_test

import (
	"testing"

	"github.com/amuse-audio/amuse"
)

func TestCmdOpNames(t *testing.T) {
	ops := amuse.CmdOps()
	if len(ops) == 0 {
		t.Fatal("no opcodes")
	}
	for i, op := range ops {
		if i > 0 && ops[i-1] >= op {
			t.Fatalf("opcodes not sorted at %d", i)
		}
		got, ok := amuse.CmdOpByName(op.String())
		if !ok || got != op {
			t.Errorf("%v does not round trip through its name", op)
		}
		if !op.Valid() {
			t.Errorf("%v listed but not valid", op)
		}
	}
	if op, ok := amuse.CmdOpByName("WaitTicks"); !ok || op != amuse.WaitTicks {
		t.Fatal("WaitTicks not found by name")
	}
	if _, ok := amuse.CmdOpByName("Bogus"); ok {
		t.Fatal("unknown name found")
	}
	if amuse.CmdOp(0xee).Valid() || amuse.CmdOp(0xee).String() != "CmdOp(0xee)" {
		t.Fatalf("unknown opcode prints as %v", amuse.CmdOp(0xee))
	}
}

func TestCmdFields(t *testing.T) {
	c := amuse.NewCmd(amuse.SetVar, 0, 2, -300)
	if s := c.String(); s != "SetVar varCtrlA=0 a=2 imm=-300" {
		t.Fatalf("unexpected string %q", s)
	}
	if v, ok := c.Field("imm"); !ok || v != -300 {
		t.Fatalf("imm is %v, %v", v, ok)
	}
	if !c.SetField("a", 5) || c.Args[1] != 5 {
		t.Fatal("SetField did not set a")
	}
	if c.SetField("bogus", 1) {
		t.Fatal("SetField accepted an unknown field")
	}
	if _, ok := c.Field("macro"); ok {
		t.Fatal("SetVar has no macro field")
	}
	if got := len(amuse.Goto.Fields()); got != 2 {
		t.Fatalf("Goto has %d fields, padding not stripped", got)
	}
	if amuse.End.Fields() != nil {
		t.Fatal("End has fields")
	}
}
