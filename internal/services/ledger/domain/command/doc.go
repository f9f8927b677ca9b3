// Package command defines the command envelope used on the ledger write path.
//
// Commands express intent from API callers and the rule scheduler. The
// registry normalizes them before the ledger decider sees them, so business
// rules are evaluated only against canonical inputs.
package command
