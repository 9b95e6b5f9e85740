package webcpp

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// charClass is the set of characters a route variable may consume.
type charClass int

const (
	classString = charClass(iota) // anything but '/'
	classAlpha
	classNumeric
	classUpper
	classLower
	classAny // anything, including '/'
)

var charClassNames = map[string]charClass{
	"string":  classString,
	"alpha":   classAlpha,
	"numeric": classNumeric,
	"upper":   classUpper,
	"lower":   classLower,
	"any":     classAny,
}

func (c charClass) accepts(b byte) bool {
	switch c {
	case classAlpha:
		return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
	case classNumeric:
		return b >= '0' && b <= '9'
	case classUpper:
		return b >= 'A' && b <= 'Z'
	case classLower:
		return b >= 'a' && b <= 'z'
	case classAny:
		return true
	}
	return b != '/'
}

type tokenKind int

const (
	tokenLiteral = tokenKind(iota)
	tokenVariable
	tokenOptional
	tokenAlternation
	tokenWildcard
)

var tokenKindTexts = map[tokenKind]string{
	tokenLiteral:     "LIT",
	tokenVariable:    "VAR",
	tokenOptional:    "OPT",
	tokenAlternation: "ALT",
	tokenWildcard:    "ANY",
}

// routeToken is one compiled unit of a path template.
type routeToken struct {
	kind     tokenKind
	text     string       // literal text
	name     string       // binding name for variables and named alternations
	class    charClass    // variable character class
	alts     []string     // alternatives, longest first
	children []routeToken // optional group contents
}

func (t routeToken) String() string {
	switch t.kind {
	case tokenLiteral:
		return fmt.Sprintf("%s(%q)", tokenKindTexts[t.kind], t.text)
	case tokenOptional:
		return fmt.Sprintf("%s%v", tokenKindTexts[t.kind], t.children)
	case tokenAlternation:
		return fmt.Sprintf("%s(%s:%s)", tokenKindTexts[t.kind], t.name, strings.Join(t.alts, "|"))
	}
	return fmt.Sprintf("%s(%s)", tokenKindTexts[t.kind], t.name)
}

// Route is a compiled path template bound to a method. It is immutable
// after CompileRoute returns and safe for concurrent use.
//
// Template grammar:
//
//	{name}          variable of class string (anything but '/')
//	{name:type}     variable of class alpha, numeric, string, upper, lower or any
//	{name:(a|b)}    alternation bound to name
//	(a|b)           alternation, not bound
//	[...]           optional sub-sequence
//	*               wildcard up to the following literal or the end, bound to "*"
//
// Anything else is literal text.
type Route struct {
	Method   string // empty matches any method
	Template string
	tokens   []routeToken
}

// CompileRoute compiles template for requests using method.
func CompileRoute(method, template string) (*Route, error) {
	p := routeParser{tpl: template}
	tokens, err := p.parseSeq(0)
	if err != nil {
		return nil, errors.Wrapf(err, "route %q", template)
	}
	return &Route{
		Method:   strings.ToUpper(method),
		Template: template,
		tokens:   tokens,
	}, nil
}

// MustCompileRoute is like CompileRoute but panics on error.
func MustCompileRoute(method, template string) *Route {
	r, err := CompileRoute(method, template)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Route) String() string {
	method := r.Method
	if method == "" {
		method = "*"
	}
	return fmt.Sprintf("[Route %s %s]", method, r.Template)
}

// AcceptsMethod returns true if the route applies to method. GET
// routes also accept HEAD.
func (r *Route) AcceptsMethod(method string) bool {
	return r.Method == "" || r.Method == "*" || r.Method == method ||
		(r.Method == http.MethodGet && method == http.MethodHead)
}

// Match matches method and path against the route, returning the bound
// parameters on success.
func (r *Route) Match(method, path string) (map[string]string, bool) {
	if !r.AcceptsMethod(method) {
		return nil, false
	}
	return r.MatchPath(path)
}

// MatchPath matches path against the template. The whole path must be
// consumed for the match to succeed.
func (r *Route) MatchPath(path string) (map[string]string, bool) {
	m := routeMatcher{path: path}
	if !m.match(r.tokens, 0, func(pos int) bool { return pos == len(path) }) {
		return nil, false
	}
	params := make(map[string]string, len(m.binds))
	for _, b := range m.binds {
		params[b.name] = b.value
	}
	return params, true
}

type routeBinding struct {
	name  string
	value string
}

// routeMatcher walks the token tree with backtracking. Bindings made
// on a failed branch are dropped by truncating binds.
type routeMatcher struct {
	path  string
	binds []routeBinding
}

func (m *routeMatcher) bind(name, value string, pos int, rest []routeToken, k func(int) bool) bool {
	mark := len(m.binds)
	if name != "" {
		m.binds = append(m.binds, routeBinding{name, value})
	}
	if m.match(rest, pos, k) {
		return true
	}
	m.binds = m.binds[:mark]
	return false
}

func (m *routeMatcher) match(tokens []routeToken, pos int, k func(int) bool) bool {
	if len(tokens) == 0 {
		return k(pos)
	}
	tok, rest := &tokens[0], tokens[1:]
	switch tok.kind {
	case tokenLiteral:
		if strings.HasPrefix(m.path[pos:], tok.text) {
			return m.match(rest, pos+len(tok.text), k)
		}
	case tokenVariable:
		end := pos
		for end < len(m.path) && tok.class.accepts(m.path[end]) {
			end++
		}
		for ; end > pos; end-- {
			if m.bind(tok.name, m.path[pos:end], end, rest, k) {
				return true
			}
		}
	case tokenAlternation:
		for _, alt := range tok.alts {
			if strings.HasPrefix(m.path[pos:], alt) && m.bind(tok.name, alt, pos+len(alt), rest, k) {
				return true
			}
		}
	case tokenOptional:
		if m.match(tok.children, pos, func(p int) bool { return m.match(rest, p, k) }) {
			return true
		}
		return m.match(rest, pos, k)
	case tokenWildcard:
		// up to the next literal anchor, or the end of the path
		end := len(m.path)
		if len(rest) > 0 && rest[0].kind == tokenLiteral {
			idx := strings.Index(m.path[pos:], rest[0].text)
			if idx < 0 {
				return false
			}
			end = pos + idx
		}
		return m.bind("*", m.path[pos:end], end, rest, k)
	}
	return false
}

type routeParser struct {
	tpl string
	pos int
}

// parseSeq parses tokens until closer, or the end of the template if
// closer is zero. The closer itself is consumed.
func (p *routeParser) parseSeq(closer byte) (tokens []routeToken, err error) {
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, routeToken{kind: tokenLiteral, text: lit.String()})
			lit.Reset()
		}
	}
	for p.pos < len(p.tpl) {
		c := p.tpl[p.pos]
		switch c {
		case '{':
			flush()
			var tok routeToken
			if tok, err = p.parseVariable(); err != nil {
				return
			}
			tokens = append(tokens, tok)
		case '[':
			flush()
			p.pos++
			var children []routeToken
			if children, err = p.parseSeq(']'); err != nil {
				return
			}
			tokens = append(tokens, routeToken{kind: tokenOptional, children: children})
		case '(':
			flush()
			var tok routeToken
			if tok, err = p.parseAlternation(""); err != nil {
				return
			}
			tokens = append(tokens, tok)
		case '*':
			flush()
			p.pos++
			tokens = append(tokens, routeToken{kind: tokenWildcard, name: "*"})
		case ']', ')', '}':
			if c != closer {
				return nil, errors.Wrapf(ErrBadRoute, "unexpected %q at %d", c, p.pos)
			}
			p.pos++
			flush()
			return
		default:
			lit.WriteByte(c)
			p.pos++
		}
	}
	if closer != 0 {
		return nil, errors.Wrapf(ErrBadRoute, "missing %q", closer)
	}
	flush()
	return
}

func (p *routeParser) parseVariable() (tok routeToken, err error) {
	start := p.pos + 1
	end := strings.IndexByte(p.tpl[start:], '}')
	if end < 0 {
		return tok, errors.Wrap(ErrBadRoute, "missing '}'")
	}
	end += start
	inner := p.tpl[start:end]
	name, typ := inner, ""
	if idx := strings.IndexByte(inner, ':'); idx >= 0 {
		name, typ = inner[:idx], inner[idx+1:]
	}
	if name == "" {
		return tok, errors.Wrapf(ErrBadRoute, "unnamed variable at %d", p.pos)
	}
	if strings.HasPrefix(typ, "(") {
		sub := routeParser{tpl: typ}
		if tok, err = sub.parseAlternation(name); err != nil {
			return
		}
		if sub.pos != len(typ) {
			return tok, errors.Wrapf(ErrBadRoute, "garbage after alternation in %q", inner)
		}
		p.pos = end + 1
		return
	}
	class := classString
	if typ != "" {
		var ok bool
		if class, ok = charClassNames[strings.ToLower(typ)]; !ok {
			return tok, errors.Wrapf(ErrBadRoute, "unknown variable type %q", typ)
		}
	}
	p.pos = end + 1
	return routeToken{kind: tokenVariable, name: name, class: class}, nil
}

func (p *routeParser) parseAlternation(name string) (tok routeToken, err error) {
	start := p.pos + 1
	end := strings.IndexByte(p.tpl[start:], ')')
	if end < 0 {
		return tok, errors.Wrap(ErrBadRoute, "missing ')'")
	}
	end += start
	alts := strings.Split(p.tpl[start:end], "|")
	for _, alt := range alts {
		if alt == "" {
			return tok, errors.Wrapf(ErrBadRoute, "empty alternative in %q", p.tpl[p.pos:end+1])
		}
	}
	sort.Slice(alts, func(i, j int) bool {
		if len(alts[i]) != len(alts[j]) {
			return len(alts[i]) > len(alts[j])
		}
		return alts[i] < alts[j]
	})
	p.pos = end + 1
	return routeToken{kind: tokenAlternation, name: name, alts: alts}, nil
}
