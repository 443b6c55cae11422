// Package otp generates and validates RFC 6238 time-based one-time codes.
//
// Seeds are accepted either as base32 strings (the form authenticator
// apps display; spaces, lower case and missing padding are tolerated) or
// as otpauth://totp/ URIs carrying their own digits, period and
// algorithm. The HOTP arithmetic itself is delegated to
// github.com/pquerna/otp; this package adds strict parameter checks,
// the remaining-validity figure and the freshness gate used when codes
// are handed out for autofill.
package otp
