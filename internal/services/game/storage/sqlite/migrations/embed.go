package migrations

import "embed"

// RecordingsFS holds the recording schema.
//
//go:embed recordings/*.sql
var RecordingsFS embed.FS
