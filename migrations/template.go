package migrations

import "github.com/toolsascode/stackmig/internal/autogen"

// GoFileTemplate is the text/template revision files are rendered from
const GoFileTemplate = autogen.GoFileTemplate
