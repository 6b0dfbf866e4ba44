package halyard

import (
	"sort"
	"strings"
	"unicode"
)

// Reserved command names. They are never transmitted; the server and
// connector synthesize them locally when a connection opens or closes.
const (
	ConnectedCommand    = "CONNECTED"
	DisconnectedCommand = "DISCONNECTED"
)

const (
	commandPrefix = '@'
	keyPrefix     = '#'
)

// Command is a decoded frame: a name selecting a route, and its parameters.
//
// On the wire a command looks like:
//
//	@SAY #room 'lobby' #text "hello there"
type Command struct {
	Name   string
	Params Params
}

// String encodes the command back into its wire form.
func (c Command) String() string {
	return Encode(c.Name, c.Params)
}

// IsEmpty reports whether the command is the sentinel Decode returns for
// frames that are not commands.
func (c Command) IsEmpty() bool {
	return c.Name == ""
}

// Decode parses a text frame into a Command. Decoding never fails: input
// that does not start with an @-prefixed token yields a Command with an
// empty name and no parameters, which will not match any route.
//
// A lone "@" with no name counts as such input too.
//
// Tokens after the name are consumed in pairs. A pair becomes a parameter
// only if its first token starts with '#'. A trailing token without a
// partner is dropped.
//
// Bare values are trimmed of whitespace and quote characters. Quoted values
// are kept verbatim, inner whitespace and the other quote character
// included, so that Decode(Encode(name, params)) returns params unchanged.
// The cost is that ' v ' decodes to " v " rather than "v".
func Decode(text string) Command {
	tokens := tokenize(text)
	if len(tokens) == 0 || tokens[0].quoted || len(tokens[0].text) < 2 ||
		!strings.HasPrefix(tokens[0].text, string(commandPrefix)) {
		return Command{Params: Params{}}
	}

	params := Params{}
	for i := 1; i+1 < len(tokens); i += 2 {
		key := tokens[i]
		value := tokens[i+1]
		if key.quoted || !strings.HasPrefix(key.text, string(keyPrefix)) {
			continue
		}
		v := value.text
		if !value.quoted {
			v = strings.TrimFunc(v, isTrimmable)
		}
		params[key.text[1:]] = v
	}

	return Command{
		Name:   tokens[0].text[1:],
		Params: params,
	}
}

// Encode renders a command name and its parameters in wire form. Values are
// wrapped in single quotes and keys are written in sorted order, with no
// trailing space:
//
//	@name #a '1' #b '2'
func Encode(name string, params Params) string {
	var b strings.Builder
	b.WriteByte(commandPrefix)
	b.WriteString(name)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteString(" #")
		b.WriteString(k)
		b.WriteString(" '")
		b.WriteString(params[k])
		b.WriteByte('\'')
	}
	return b.String()
}

type token struct {
	text   string
	quoted bool
}

// tokenize splits on whitespace outside of quotes. A quote character opens
// a span that runs to the next occurrence of the same character, or to the
// end of input if there is none. There are no escapes.
func tokenize(text string) []token {
	var (
		tokens  []token
		current strings.Builder
		open    bool
	)

	flush := func(quoted bool) {
		if !open && !quoted {
			return
		}
		tokens = append(tokens, token{text: current.String(), quoted: quoted})
		current.Reset()
		open = false
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			flush(false)

		case r == '\'' || r == '"':
			flush(false)
			end := i + 1
			for end < len(runes) && runes[end] != r {
				end++
			}
			current.WriteString(string(runes[i+1 : end]))
			flush(true)
			i = end

		default:
			current.WriteRune(r)
			open = true
		}
	}
	flush(false)

	return tokens
}

func isTrimmable(r rune) bool {
	return unicode.IsSpace(r) || r == '\'' || r == '"'
}
