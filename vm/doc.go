// Package vm implements the rbot virtual machine, a bytecode interpreter
// for the subset of Ruby that game bots are written in.
//
// This package contains:
//   - Tagged value representation and the builtin object model
//   - VTable-based method dispatch with class-side tables
//   - Frames, closures and the Next/Break/Return unwinder
//   - Bytecode interpreter with step budgets and rescue tables
//   - Primitive class implementations (Kernel, Integer, String, ...)
//   - SharedMemory, the byte buffer bots exchange messages through
package vm
