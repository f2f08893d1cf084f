package token

type Type int

const (
	EOF Type = iota
	Ident
	Tag       // ident#, e.g. raw#
	Attribute // @ident
	Number
	FloatNumber
	String
	Command // !( ... )
	True
	False
	Fn
	Let
	Return
	If
	Else
	Loop
	While
	Break
	Continue
	As
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma
	Colon
	Arrow
	Eq
	PlusEq
	MinusEq
	StarEq
	SlashEq
	RemEq
	Plus
	Minus
	Star
	Slash
	Rem
	And
	Or
	Xor
	Shl
	Shr
	EqEq
	Neq
	Lt
	Gt
	Gte
	Lte
	AndAnd
	OrOr
	Inc
	Dec
)

var KeywordMap = map[string]Type{
	"fn":       Fn,
	"let":      Let,
	"return":   Return,
	"ret":      Return,
	"if":       If,
	"else":     Else,
	"loop":     Loop,
	"while":    While,
	"break":    Break,
	"continue": Continue,
	"as":       As,
	"true":     True,
	"false":    False,
}

var punctStrings = map[Type]string{
	EOF: "end of file", Ident: "identifier", Tag: "tag", Attribute: "attribute",
	Number: "integer literal", FloatNumber: "float literal", String: "string literal", Command: "command literal",
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", LBracket: "[", RBracket: "]",
	Semi: ";", Comma: ",", Colon: ":", Arrow: "->", Eq: "=",
	PlusEq: "+=", MinusEq: "-=", StarEq: "*=", SlashEq: "/=", RemEq: "%=",
	Plus: "+", Minus: "-", Star: "*", Slash: "/", Rem: "%",
	And: "&", Or: "|", Xor: "^", Shl: "<<", Shr: ">>",
	EqEq: "==", Neq: "!=", Lt: "<", Gt: ">", Gte: ">=", Lte: "<=",
	AndAnd: "&&", OrOr: "||", Inc: "++", Dec: "--",
}

// TypeStrings maps a token type to its spelling for parser messages.
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		if _, ok := TypeStrings[typ]; !ok || str == "return" {
			TypeStrings[typ] = str
		}
	}
	for typ, str := range punctStrings {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok { return s }
	return "token"
}

// Token is one lexeme. Offset and Len are byte positions into the source;
// Line and Column are 1-based, Column counting runes.
type Token struct {
	Type   Type
	Value  string
	Offset int
	Len    int
	Line   int
	Column int
}
