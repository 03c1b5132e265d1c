// Package all links every storage backend into the binary.
package all

import (
	_ "modelconv/internal/storage/mssql"
	_ "modelconv/internal/storage/postgres"
	_ "modelconv/internal/storage/sqlite"
)
