// Package jwt authenticates guard API callers with HS256 bearer tokens built on
// github.com/golang-jwt/jwt/v5.
//
// The token subject is the user id; an optional team_id claim names the team
// whose plan may apply. Middleware parses the token and stores a Principal in
// the request context:
//
//	svc, _ := jwt.New(secret, jwt.WithIssuer("planguard"))
//	r.Use(jwt.Middleware(svc, nil))
//	...
//	p, _ := jwt.PrincipalFromContext(r.Context())
package jwt
