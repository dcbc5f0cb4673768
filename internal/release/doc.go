// Package release implements quantity reconciliation for blanket sales orders.
//
// A blanket order is a standing order whose lines are released into ordinary
// sales orders a portion at a time. This package owns the rules for that and
// nothing else: it performs no I/O and holds no locks.
//
// A release action flows through three steps:
//
//  1. [Validate] checks the submitted batch against the order and collects
//     every problem (unknown line, missing quantity, quantity above what is
//     left, nothing selected).
//  2. [Apply] moves each validated quantity from remaining to released, in
//     submission order, and returns the lines for the child order.
//  3. [DeriveStatus] marks the order complete once no line has anything left.
//
// Loading and saving orders, creating the child order and resolving units of
// measure are done by the caller.
package release
