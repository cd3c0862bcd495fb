// Package authn implements account and session lifecycle: login,
// organization switching, signup, the invitation setup flow and password
// reset.
//
// Login failures are deliberately uniform. Unknown email, wrong password and
// archived membership all surface the same unauthorized error so a caller
// cannot probe which check failed.
package authn
