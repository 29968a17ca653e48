// Package vm groups the volumes of one virtual machine.
//
// A VM typically has a root volume (a snapshot of its template), a private
// volume (persistent), and a volatile volume (swap and scratch). Storage
// drives them together:
//   - Create, Start, Stop and Verify run on every volume concurrently and
//     return the first error
//   - Remove runs on every volume and reports every failure
//   - CloneFrom imports each volume from the same-named volume of another VM
//
// Context Support:
//
// All operations accept a context.Context. Concurrent operations share a
// context that is cancelled on the first failure.
package vm
