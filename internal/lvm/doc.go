// Package lvm drives the lvm(8) tool for thin-provisioned volumes.
//
// It provides three pieces:
//   - Dispatcher translates the six volume actions (create, clone, remove,
//     rename, extend, activate) into single lvm invocations and reports a
//     *CommandError when lvm exits non-zero.
//   - Cache holds a point-in-time view of every logical volume reported by
//     lvs. Refresh replaces the view atomically or not at all.
//   - Attr decodes the lv_attr column.
//
// All subprocesses go through a Runner so that tests can substitute a fake
// lvm (see the lvmtest package).
package lvm
