// Package migrations embebe las migraciones SQL del store central.
package migrations

import "embed"

// FS contiene los archivos *_up.sql / *_down.sql en orden de aplicación.
//
//go:embed *.sql
var FS embed.FS
