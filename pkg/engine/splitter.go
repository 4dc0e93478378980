package engine

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
)

// sqlLexer only knows enough SQL to find the semicolons that end statements:
// anything inside comments, strings, quoted identifiers or dollar quoted
// bodies is kept together.
var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\n]*`},
	{Name: "MultilineComment", Pattern: `/\*[^*]*\*+([^/*][^*]*\*+)*/`},
	{Name: "String", Pattern: `'([^'\\]|\\.|'')*'`},
	{Name: "QuotedIdent", Pattern: `"([^"]|"")*"`},
	{Name: "BacktickIdent", Pattern: "`[^`]*`"},
	{Name: "DollarQuoted", Pattern: `\$\$(?s:.*?)\$\$|\$[A-Za-z_][A-Za-z0-9_]*\$(?s:.*?)\$[A-Za-z_][A-Za-z0-9_]*\$`},
	{Name: "Semicolon", Pattern: `;`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Other", Pattern: "[^;'\"`$\\s\\-/]+|[\\-/$]"},
})

var (
	semicolonToken = sqlLexer.Symbols()["Semicolon"]
	trivia         = map[lexer.TokenType]bool{
		sqlLexer.Symbols()["Comment"]:          true,
		sqlLexer.Symbols()["MultilineComment"]: true,
		sqlLexer.Symbols()["Whitespace"]:       true,
	}
)

// SplitStatements splits a script into the statements it contains. Statements
// made only of comments are dropped and the trailing semicolon is removed.
//
// Example:
//
//	stmts, err := engine.SplitStatements(`
//	-- users
//	CREATE TABLE users (id INT);
//	INSERT INTO users VALUES (1);
//	`)
//	// stmts[0] == "-- users\nCREATE TABLE users (id INT)"
//	// stmts[1] == "INSERT INTO users VALUES (1)"
func SplitStatements(script string) ([]string, error) {
	lex, err := sqlLexer.LexString("", script)
	if err != nil {
		return nil, errors.Wrap(err, "failed to lex script")
	}

	tokens, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, errors.Wrap(err, "failed to split statements")
	}

	var (
		stmts   []string
		buf     strings.Builder
		hasCode bool
	)

	flush := func() {
		if hasCode {
			stmts = append(stmts, strings.TrimSpace(buf.String()))
		}
		buf.Reset()
		hasCode = false
	}

	for _, tok := range tokens {
		switch {
		case tok.EOF():
			continue
		case tok.Type == semicolonToken:
			flush()
		default:
			buf.WriteString(tok.Value)
			if !trivia[tok.Type] {
				hasCode = true
			}
		}
	}
	flush()

	return stmts, nil
}
