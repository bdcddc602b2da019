package events

import (
	"fmt"
	"strings"
)

// ParseCommandLine parses a console line of the form
//
//	<command> [--key value | --key=value | --flag]...
//
// Values may be double- or single-quoted. A bare --flag is recorded as "true".
func ParseCommandLine(line string) (Request, error) {
	tokens, err := tokenize(line)
	if err != nil {
		return Request{}, err
	}
	if len(tokens) == 0 {
		return Request{}, fmt.Errorf("empty command")
	}

	req := Request{Command: tokens[0], Args: map[string]any{}}
	for i := 1; i < len(tokens); i++ {
		tok := tokens[i]
		if !strings.HasPrefix(tok, "--") || len(tok) == 2 {
			return Request{}, fmt.Errorf("unexpected argument %q", tok)
		}
		key := tok[2:]
		if k, v, found := strings.Cut(key, "="); found {
			req.Args[k] = v
			continue
		}
		if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "--") {
			req.Args[key] = tokens[i+1]
			i++
			continue
		}
		req.Args[key] = "true"
	}
	return req, nil
}

func tokenize(line string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		quote   rune
		inToken bool
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inToken = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if escaped {
		current.WriteRune('\\')
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}
