// Package bpf is a user-space virtual machine for the extended BPF
// instruction set.
//
// Programs are decoded once into an immutable, slot-indexed Program and then
// validated. A validated Program can be run by the Interpreter any number of
// times, concurrently, against memory supplied by the caller through one of
// the Memory implementations (a single buffer, a metadata buffer plus packet,
// or a packet with a VM-built metadata buffer).
//
// Programs never see host addresses. The stack, the generic memory buffer and
// the packet each live in their own 4GiB region of a virtual address space,
// and every load and store is checked against the region it falls in.
//
// Native code generation lives in bpf/jit and the host-facing facade that ties
// the two engines together lives in bpf/vm.
package bpf
