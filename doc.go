// Package account implements the account authentication and lifecycle
// core: registration, email verification, login with progressive lockout,
// password and email changes, wallet linking, invite codes, and the
// scheduled maintenance sweeps that clean up after all of them.
//
// Lockout:
//   - LockoutMachine tracks failed logins per account and escalates from
//     warnings into temporary bans and finally a permanent ban. Every
//     escalation is a compare-and-set on the attempt counter, so
//     concurrent failures never double-count.
//
// Verification:
//   - VerificationService issues one-time tokens with a fixed lifetime
//     and confirms them exactly once. Accounts that predate the token
//     rollout are detected at load time and re-enter the flow on their
//     next login attempt.
//
// Invites:
//   - InviteService mints purpose-tagged codes behind an admin secret
//     and redeems them at most once per purpose per account, enforced by
//     a unique index rather than application bookkeeping.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by every service
//     to describe registrations, logins, bans, and redemptions. Sinks run
//     best-effort (errors are logged) so you can forward to a database or
//     queue without blocking authentication.
package account
