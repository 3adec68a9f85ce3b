package script

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// ScriptLexer tokenizes probe scripts. Keywords are plain identifiers and
// are matched case-insensitively by the parser.
var ScriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Comments run from # to end of line
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s]+`},

	// Numbers: hex, binary or decimal, with optional _ separators
	{Name: "Number", Pattern: `0[xX][0-9a-fA-F_]+|0[bB][01_]+|[0-9][0-9_]*`},

	// TAP state names may carry dashes, as in Run-Test-Idle
	{Name: "Ident", Pattern: `[a-zA-Z][a-zA-Z0-9_\-]*`},
})
