// Package token implements rotating refresh-token families with reuse
// detection.
//
// Every login starts a family; every successful refresh consumes the
// current generation and mints the next one inside a single atomic
// repository operation. Presenting a generation that has already been
// consumed is treated as theft: the whole family is revoked and a critical
// audit event is recorded, once per family.
//
// A configurable grace window softens the single-use rule for the most
// recent rotation only, so a client retrying a refresh over a flaky network
// is not punished as an attacker.
package token
