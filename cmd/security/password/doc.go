// Package password hashes and verifies account passwords for the DayCheck dev
// backend using Argon2id.
//
// Hashes use the PHC string layout:
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<key>
//
// Encoded hashes are treated as untrusted input: Verify refuses cost
// parameters far above the configured ones.
package password
