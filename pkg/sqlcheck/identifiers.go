package sqlcheck

import (
	"strings"
	"unicode"
)

// TableRef is a table referenced by a statement, with its alias if one was
// declared.
type TableRef struct {
	Name  string
	Alias string
}

// ColumnRef is a column referenced by a statement. Qualifier is the alias or
// table name prefix, empty for bare column references.
type ColumnRef struct {
	Qualifier string
	Name      string
}

// Identifiers holds everything extracted from a single statement that schema
// validation needs: referenced tables, referenced columns, and the names that
// the statement itself defines (CTEs, subquery aliases, column aliases) which
// must not be checked against the live schema.
type Identifiers struct {
	Tables       []TableRef
	Columns      []ColumnRef
	DefinedNames map[string]bool
}

// sqlKeywords are tokens that are never identifiers. The set covers the
// read-mostly dialect subset the generator produces; anything not recognized
// here is treated as an identifier and validated against the schema.
var sqlKeywords = map[string]bool{
	"select": true, "from": true, "where": true, "and": true, "or": true,
	"not": true, "in": true, "is": true, "null": true, "like": true,
	"ilike": true, "between": true, "exists": true, "join": true,
	"inner": true, "left": true, "right": true, "full": true, "outer": true,
	"cross": true, "on": true, "using": true, "group": true, "by": true,
	"having": true, "order": true, "asc": true, "desc": true, "limit": true,
	"offset": true, "fetch": true, "first": true, "next": true, "rows": true,
	"row": true, "only": true, "top": true, "distinct": true, "all": true,
	"as": true, "union": true, "intersect": true, "except": true,
	"case": true, "when": true, "then": true, "else": true, "end": true,
	"with": true, "insert": true, "into": true, "values": true,
	"update": true, "set": true, "delete": true, "call": true,
	"true": true, "false": true, "interval": true, "cast": true,
	"over": true, "partition": true, "filter": true, "within": true,
	"lateral": true, "natural": true, "escape": true, "collate": true,
	"current_date": true, "current_time": true, "current_timestamp": true,
	"extract": true, "day": true, "month": true, "year": true, "hour": true,
	"minute": true, "second": true, "week": true, "quarter": true,
	"any": true, "some": true,
}

type token struct {
	text  string
	ident bool
}

// tokenize splits a statement into identifier and punctuation tokens with all
// string literals removed, so quoted values can never look like identifiers.
func tokenize(sql string) []token {
	var tokens []token
	runes := []rune(sql)
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case c == '\'':
			// skip string literal, honoring '' escapes
			i++
			for i < len(runes) {
				if runes[i] == '\'' {
					if i+1 < len(runes) && runes[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
		case c == '"':
			// quoted identifier
			start := i + 1
			i++
			for i < len(runes) && runes[i] != '"' {
				i++
			}
			tokens = append(tokens, token{text: string(runes[start:i]), ident: true})
			if i < len(runes) {
				i++
			}
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{text: string(runes[start:i]), ident: true})
		case unicode.IsDigit(c):
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
		case unicode.IsSpace(c):
			i++
		default:
			tokens = append(tokens, token{text: string(c)})
			i++
		}
	}
	return tokens
}

// ExtractIdentifiers pulls table and column references out of a statement.
// It is a heuristic token scan, not a full parser: it accepts the SELECT
// subset the generator is allowed to produce and errs on the side of
// reporting a reference rather than silently skipping one.
func ExtractIdentifiers(sql string) Identifiers {
	tokens := tokenize(sql)
	ids := Identifiers{DefinedNames: map[string]bool{}}

	isKeyword := func(t token) bool {
		return t.ident && sqlKeywords[strings.ToLower(t.text)]
	}
	kw := func(t token, word string) bool {
		return t.ident && strings.EqualFold(t.text, word)
	}

	// Pass 1: names the statement defines. CTE names appear as `name AS (`,
	// subquery aliases as `) name` or `) AS name`, column aliases as
	// `AS name` elsewhere.
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.ident && !isKeyword(t) &&
			i+2 < len(tokens) && kw(tokens[i+1], "as") && tokens[i+2].text == "(" {
			ids.DefinedNames[strings.ToLower(t.text)] = true
		}
		if kw(t, "as") && i+1 < len(tokens) && tokens[i+1].ident && !isKeyword(tokens[i+1]) {
			ids.DefinedNames[strings.ToLower(tokens[i+1].text)] = true
		}
		if t.text == ")" && i+1 < len(tokens) && tokens[i+1].ident && !isKeyword(tokens[i+1]) {
			ids.DefinedNames[strings.ToLower(tokens[i+1].text)] = true
		}
	}

	// Pass 2: table references after FROM / JOIN / INTO / UPDATE, with
	// optional aliases. A comma inside a FROM clause continues the table list.
	inFromList := false
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]

		if kw(t, "from") || kw(t, "join") || kw(t, "into") || kw(t, "update") {
			inFromList = kw(t, "from")
			j := i + 1
			if j < len(tokens) && tokens[j].text == "(" {
				continue // subquery, handled by its own FROM
			}
			i = consumeTableRef(tokens, j, &ids)
			continue
		}

		if inFromList && t.text == "," {
			j := i + 1
			if j < len(tokens) && tokens[j].text == "(" {
				continue
			}
			i = consumeTableRef(tokens, j, &ids)
			continue
		}

		// Any clause keyword ends a FROM table list.
		if isKeyword(t) && !kw(t, "as") {
			inFromList = false
		}
	}

	// Pass 3: column references. Qualified refs are `qualifier.column`;
	// bare identifiers that are not keywords, not function names (followed
	// by '('), not table names, and not defined names are treated as columns.
	tableNames := map[string]bool{}
	aliasNames := map[string]bool{}
	for _, tr := range ids.Tables {
		tableNames[strings.ToLower(tr.Name)] = true
		if tr.Alias != "" {
			aliasNames[strings.ToLower(tr.Alias)] = true
		}
	}

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if !t.ident || isKeyword(t) {
			continue
		}

		// qualified reference
		if i+2 < len(tokens) && tokens[i+1].text == "." && tokens[i+2].ident {
			ids.Columns = append(ids.Columns, ColumnRef{
				Qualifier: t.text,
				Name:      tokens[i+2].text,
			})
			i += 2
			continue
		}

		// part of a qualified reference already consumed, or qualifier itself
		if i > 0 && tokens[i-1].text == "." {
			continue
		}

		// function call
		if i+1 < len(tokens) && tokens[i+1].text == "(" {
			continue
		}

		lower := strings.ToLower(t.text)
		if tableNames[lower] || aliasNames[lower] || ids.DefinedNames[lower] {
			continue
		}

		// alias position right after a table reference is already recorded
		// via consumeTableRef; what remains here is a bare column.
		ids.Columns = append(ids.Columns, ColumnRef{Name: t.text})
	}

	return ids
}

// consumeTableRef reads `schema.table [AS] alias` starting at tokens[j],
// records it, and returns the index of the last consumed token.
func consumeTableRef(tokens []token, j int, ids *Identifiers) int {
	if j >= len(tokens) || !tokens[j].ident {
		return j - 1
	}

	name := tokens[j].text
	last := j
	if j+2 < len(tokens) && tokens[j+1].text == "." && tokens[j+2].ident {
		name = name + "." + tokens[j+2].text
		last = j + 2
	}

	ref := TableRef{Name: name}

	// optional alias
	k := last + 1
	if k < len(tokens) && strings.EqualFold(tokens[k].text, "as") && tokens[k].ident {
		k++
	}
	if k < len(tokens) && tokens[k].ident && !sqlKeywords[strings.ToLower(tokens[k].text)] {
		ref.Alias = tokens[k].text
		last = k
	}

	ids.Tables = append(ids.Tables, ref)
	return last
}
