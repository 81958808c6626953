// Package pgmigrations embeds the Postgres schema migrations, applied in
// lexical order by the server's migrate command.
package pgmigrations

import "embed"

//go:embed *.sql
var FS embed.FS
