// Package workqueue builds the ordered list of orders a worker may pick up
// for a stage.
//
// Orders that match any hot predicate (rush turnaround, priority, high
// difficulty, high PWER, overdue) form the primary tier. When no order is
// hot, every ready order is offered, latest delivery first.
package workqueue
