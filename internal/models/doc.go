// Package models defines the core domain entities for the ledger engine.
//
// # Entities
//
//   - Expense: a shared expense paid by one user, split among participants
//   - ExpenseSplit: one non-payer participant's obligation from an expense
//   - Settlement: a recorded payment between two users that discharges splits
//   - Balance: a derived net position for one user within a scope
//   - Transfer: a recommended payment produced by the settlement optimizer
//
// All monetary amounts are int64 minor currency units (cents, paise, ...).
// This keeps every sum exact: the engine never uses binary floating point
// for money.
//
// # Derived data
//
// Balance and Transfer are never stored. They are recomputed from the
// committed Expense/ExpenseSplit/Settlement rows on every query, so the
// stored rows remain the single source of truth.
//
// # Design principles
//
//  1. ID strings (UUIDs) instead of pointers for relationships, to avoid
//     circular references
//  2. Soft deletion: a deleted expense and its splits stay in storage but
//     are invisible to every balance computation
//  3. Status enums are plain string types so they round-trip through SQL
//     without conversion
package models
