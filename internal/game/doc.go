// Package game implements the rules of ito, a cooperative card game.
//
// Each player holds one or more secret numbers drawn from a shared range.
// Players have to play every number on the table in ascending order without
// telling each other what they hold, only talking around a shared topic.
//
// # Model
//
// Game is the persisted record of one session: its Config, lifecycle Status,
// failure count and the ascending list of numbers already on the table.
// Card is one secret number. A card is Held until its owner proposes it, and
// it ends Eliminated either because it was played or because a failed
// proposal skipped past it.
//
// # Resolving a turn
//
// A Ledger wraps every card of one game. Propose applies the forced-lowest
// rule (a player always proposes their own smallest held card), judges it
// against the next number due, runs the failure cascade when it is wrong and
// returns a Resolution with the Verdict for the game:
//
//	ledger := game.NewLedger(cards)
//	res, err := game.Propose(&g, ledger, playerID, now)
//	if err != nil {
//	    return err
//	}
//	for _, c := range ledger.Changed() {
//	    // persist c
//	}
//	if res.Verdict.Over {
//	    // finish the game with res.Verdict.Outcome
//	}
//
// Persistence, topics and authorization live in the service package; this
// package is pure and has no I/O.
package game
