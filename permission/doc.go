// Package permission defines the closed role and permission model used by
// estateauth authorization checks.
//
// # Model
//
// [Role] is a closed enumeration. Each account holds exactly one role.
// [Permission] values are bit positions in a 64-bit [Set]. A route declares
// the roles it admits as a [RoleSet] and the permissions it needs as a [Set];
// [Satisfies] decides the request.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import estateauth, jwt, or session.
//   - Accept role or permission names outside the enumerations below.
package permission
