// Package model holds the delivery domain types shared by storage, the
// conversation engine and the scheduler.
package model
