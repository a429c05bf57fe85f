package isa

import (
	"strconv"

	"github.com/xyproto/vlower/internal/operand"
)

// Register definitions for all supported architectures

type RegClass uint8

const (
	RegGPR RegClass = iota
	RegVector
	RegMask
	RegFloat
)

type Register struct {
	Name     string
	Class    RegClass
	Size     int   // Size in bits
	Encoding uint8 // Encoding for instruction generation
}

var x86GPRNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var ppcGPRNames = func() [32]string {
	var names [32]string
	for i := range names {
		names[i] = "r" + strconv.Itoa(i)
	}
	names[1] = "sp"
	return names
}()

// x86_64 registers
var x86_64Registers = func() map[string]Register {
	m := make(map[string]Register)
	for i, name := range x86GPRNames {
		m[name] = Register{Name: name, Class: RegGPR, Size: 64, Encoding: uint8(i)}
	}
	for i := 0; i < 32; i++ {
		n := strconv.Itoa(i)
		m["xmm"+n] = Register{Name: "xmm" + n, Class: RegVector, Size: 128, Encoding: uint8(i)}
		m["ymm"+n] = Register{Name: "ymm" + n, Class: RegVector, Size: 256, Encoding: uint8(i)}
		m["zmm"+n] = Register{Name: "zmm" + n, Class: RegVector, Size: 512, Encoding: uint8(i)}
	}
	for i := 0; i < 8; i++ {
		n := "k" + strconv.Itoa(i)
		m[n] = Register{Name: n, Class: RegMask, Size: 64, Encoding: uint8(i)}
	}
	return m
}()

// ARM64 registers
var arm64Registers = func() map[string]Register {
	m := make(map[string]Register)
	for i := 0; i < 31; i++ {
		n := strconv.Itoa(i)
		m["x"+n] = Register{Name: "x" + n, Class: RegGPR, Size: 64, Encoding: uint8(i)}
		m["w"+n] = Register{Name: "w" + n, Class: RegGPR, Size: 32, Encoding: uint8(i)}
	}
	m["sp"] = Register{Name: "sp", Class: RegGPR, Size: 64, Encoding: 31}
	m["xzr"] = Register{Name: "xzr", Class: RegGPR, Size: 64, Encoding: 31}
	m["lr"] = Register{Name: "lr", Class: RegGPR, Size: 64, Encoding: 30}
	for i := 0; i < 32; i++ {
		n := strconv.Itoa(i)
		m["v"+n] = Register{Name: "v" + n, Class: RegVector, Size: 128, Encoding: uint8(i)}
		m["q"+n] = Register{Name: "q" + n, Class: RegVector, Size: 128, Encoding: uint8(i)}
	}
	return m
}()

// ppc64le registers. Vector registers are the VMX set v0-v31, which are
// VSX registers vs32-vs63.
var ppc64Registers = func() map[string]Register {
	m := make(map[string]Register)
	for i, name := range ppcGPRNames {
		m[name] = Register{Name: name, Class: RegGPR, Size: 64, Encoding: uint8(i)}
		if name != "r"+strconv.Itoa(i) {
			m["r"+strconv.Itoa(i)] = Register{Name: name, Class: RegGPR, Size: 64, Encoding: uint8(i)}
		}
	}
	for i := 0; i < 32; i++ {
		n := strconv.Itoa(i)
		m["v"+n] = Register{Name: "v" + n, Class: RegVector, Size: 128, Encoding: uint8(i)}
		m["vs"+strconv.Itoa(i+32)] = Register{Name: "v" + n, Class: RegVector, Size: 128, Encoding: uint8(i)}
		m["f"+n] = Register{Name: "f" + n, Class: RegFloat, Size: 64, Encoding: uint8(i)}
	}
	return m
}()

// GetRegister returns register info for the given machine and register name
func GetRegister(machine Arch, regName string) (Register, bool) {
	switch machine {
	case ArchX86_64:
		reg, ok := x86_64Registers[regName]
		return reg, ok
	case ArchARM64:
		reg, ok := arm64Registers[regName]
		return reg, ok
	case ArchPPC64LE:
		reg, ok := ppc64Registers[regName]
		return reg, ok
	default:
		return Register{}, false
	}
}

// IsRegister checks if a string is a valid register name for the given machine
func IsRegister(machine Arch, name string) bool {
	_, ok := GetRegister(machine, name)
	return ok
}

// VecName names physical vector register r at the given vector size
func VecName(machine Arch, bytes int, r operand.PReg) string {
	n := strconv.Itoa(int(r))
	switch machine {
	case ArchX86_64:
		switch bytes {
		case 64:
			return "zmm" + n
		case 32:
			return "ymm" + n
		}
		return "xmm" + n
	default:
		return "v" + n
	}
}

// GPRName names general purpose register r
func GPRName(machine Arch, r operand.GPR) string {
	switch machine {
	case ArchX86_64:
		if int(r) < len(x86GPRNames) {
			return x86GPRNames[r]
		}
	case ArchARM64:
		if r == 31 {
			return "sp"
		}
		return "x" + strconv.Itoa(int(r))
	case ArchPPC64LE:
		if int(r) < len(ppcGPRNames) {
			return ppcGPRNames[r]
		}
	}
	return "g" + strconv.Itoa(int(r))
}

// OperandName renders an operand with the machine's register names
func OperandName(machine Arch, bytes int, op operand.Operand) string {
	switch x := op.(type) {
	case operand.PReg:
		return VecName(machine, bytes, x)
	case operand.GPR:
		return GPRName(machine, x)
	case operand.KReg:
		return "k" + strconv.Itoa(int(x))
	case operand.Mem:
		d := ""
		if x.Disp != 0 {
			d = "+" + strconv.FormatInt(x.Disp, 10)
			if x.Disp < 0 {
				d = strconv.FormatInt(x.Disp, 10)
			}
		}
		return "[" + GPRName(machine, x.Base) + d + "]"
	case nil:
		return ""
	default:
		return x.String()
	}
}
