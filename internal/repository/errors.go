// Package repository holds the MySQL and Redis stores behind the auth
// subsystem. Lookups that find nothing return auth.ErrPrincipalNotFound;
// the sentinel below covers the remaining case handlers need to tell
// apart.
package repository

import "errors"

// ErrIdentifierTaken is returned by UserRepo.Create when the username,
// email or phone already belongs to another principal. Handlers
// translate it into an HTTP 409 response.
var ErrIdentifierTaken = errors.New("identifier already taken")
