package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errUnbalanced   = errors.New("unbalanced quotes or brackets")
	errEmptyElement = errors.New("empty list element")
)

// splitArgs splits a line on whitespace, keeping quoted strings and bracketed lists in one token.
func splitArgs(line string) ([]string, error) {
	var (
		args  []string
		cur   strings.Builder
		inTok bool
		quote byte
		depth int
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(line) {
				i++
				cur.WriteByte(line[i])
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			inTok = true
			cur.WriteByte(c)
		case c == '[':
			depth++
			inTok = true
			cur.WriteByte(c)
		case c == ']':
			if depth == 0 {
				return nil, errUnbalanced
			}
			depth--
			cur.WriteByte(c)
		case depth == 0 && isSpace(c):
			if inTok {
				args = append(args, cur.String())
				cur.Reset()
				inTok = false
			}
		default:
			inTok = true
			cur.WriteByte(c)
		}
	}
	if quote != 0 || depth != 0 {
		return nil, errUnbalanced
	}
	if inTok {
		args = append(args, cur.String())
	}
	return args, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// parseLiteral turns one token into a codec value. Tokens that are not literals are strings.
func parseLiteral(tok string) (any, error) {
	switch {
	case tok == "true":
		return true, nil
	case tok == "false":
		return false, nil
	case isQuoted(tok):
		return unquote(tok)
	case len(tok) > 1 && (tok[0] == 'b' || tok[0] == 'B') && isQuoted(tok[1:]):
		s, err := unquote(tok[1:])
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	case strings.HasPrefix(tok, "["):
		return parseList(tok)
	}

	if looksNumeric(tok) {
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return f, nil
		}
	}
	return tok, nil
}

func looksNumeric(tok string) bool {
	s := strings.TrimLeft(tok, "+-")
	if len(s) == 0 || len(tok)-len(s) > 1 {
		return false
	}
	return (s[0] >= '0' && s[0] <= '9') || s[0] == '.'
}

func isQuoted(tok string) bool {
	return len(tok) >= 2 && (tok[0] == '"' || tok[0] == '\'') && tok[len(tok)-1] == tok[0]
}

func unquote(tok string) (string, error) {
	q := tok[0]
	s := tok[1 : len(tok)-1]
	var b strings.Builder
	for len(s) > 0 {
		r, multibyte, tail, err := strconv.UnquoteChar(s, q)
		if err != nil {
			return "", fmt.Errorf("bad quoted string %s: %w", tok, err)
		}
		if multibyte {
			b.WriteRune(r)
		} else {
			b.WriteByte(byte(r))
		}
		s = tail
	}
	return b.String(), nil
}

// parseList parses "[a, b, ...]". A trailing comma is allowed.
func parseList(tok string) (any, error) {
	if !strings.HasSuffix(tok, "]") {
		return nil, errUnbalanced
	}
	inner := strings.TrimSpace(tok[1 : len(tok)-1])
	if inner == "" {
		return []any{}, nil
	}

	var (
		parts []string
		start int
		quote byte
		depth int
	)
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, inner[start:i])
			start = i + 1
		}
	}
	if last := strings.TrimSpace(inner[start:]); last != "" {
		parts = append(parts, last)
	}

	items := make([]any, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, errEmptyElement
		}
		v, err := parseLiteral(p)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}
