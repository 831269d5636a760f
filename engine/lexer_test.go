package engine

import "testing"

func tokenTypes(t *testing.T, input string) []TokenType {
	t.Helper()
	tokens, errs := NewLexer(input).Tokenize()
	if len(errs) > 0 {
		t.Fatalf("Tokenize(%q) failed: %v", input, errs)
	}
	types := make([]TokenType, 0, len(tokens))
	for _, tok := range tokens {
		types = append(types, tok.Type)
	}
	return types
}

func assertTypes(t *testing.T, input string, want ...TokenType) {
	t.Helper()
	got := tokenTypes(t, input)
	if len(got) != len(want) {
		t.Fatalf("Tokenize(%q) = %v, want %v", input, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize(%q)[%d] = %v, want %v", input, i, got[i], want[i])
		}
	}
}

func TestLexUnitSuffix(t *testing.T) {
	assertTypes(t, "=100 mi",
		TokenEquals, TokenNumber, TokenUnit, TokenEOF)

	// * continues a unit only into letters, so this is a multiply
	assertTypes(t, "=2 mi*2",
		TokenEquals, TokenNumber, TokenUnit, TokenBinaryOp, TokenNumber, TokenEOF)

	assertTypes(t, "=75 USD/hr*40 hr",
		TokenEquals, TokenNumber, TokenUnit, TokenBinaryOp, TokenNumber, TokenUnit, TokenEOF)

	assertTypes(t, "=9 m^2",
		TokenEquals, TokenNumber, TokenUnit, TokenEOF)

	assertTypes(t, "=1 s^-1",
		TokenEquals, TokenNumber, TokenUnit, TokenEOF)

	// an identifier not following a number is a name, not a unit
	assertTypes(t, "=mi",
		TokenEquals, TokenIdentifier, TokenEOF)
}

func TestLexUnitTokenValues(t *testing.T) {
	tokens, errs := NewLexer("=75 USD/hr*40 hr").Tokenize()
	if len(errs) > 0 {
		t.Fatalf("lex failed: %v", errs)
	}
	if tokens[2].Value != "USD/hr" {
		t.Errorf("unit token = %q, want USD/hr", tokens[2].Value)
	}
	if tokens[3].Value != "*" {
		t.Errorf("operator token = %q, want *", tokens[3].Value)
	}
	if tokens[5].Value != "hr" {
		t.Errorf("second unit token = %q, want hr", tokens[5].Value)
	}
}

func TestLexErrorLiteral(t *testing.T) {
	assertTypes(t, "=#REF!+1",
		TokenEquals, TokenErrorLiteral, TokenBinaryOp, TokenNumber, TokenEOF)

	assertTypes(t, "=(#REF!*2)",
		TokenEquals, TokenLeftParen, TokenErrorLiteral, TokenBinaryOp, TokenNumber, TokenRightParen, TokenEOF)

	if _, errs := NewLexer("=#BOGUS!").Tokenize(); len(errs) == 0 {
		t.Errorf("unknown error literal should fail")
	}
}

func TestLexAbsoluteReferences(t *testing.T) {
	for _, input := range []string{"=$A$1", "=A$1", "=$A1"} {
		tokens, errs := NewLexer(input).Tokenize()
		if len(errs) > 0 {
			t.Fatalf("Tokenize(%q) failed: %v", input, errs)
		}
		if tokens[1].Type != TokenCell {
			t.Errorf("Tokenize(%q)[1] = %v, want cell", input, tokens[1].Type)
		}
	}
}

func TestLexLiteralInput(t *testing.T) {
	tokens, errs := NewLexerForLiteral("100 mi").Tokenize()
	if len(errs) > 0 {
		t.Fatalf("literal lex failed: %v", errs)
	}
	if tokens[0].Type != TokenNumber || tokens[1].Type != TokenUnit {
		t.Errorf("literal tokens = %v %v", tokens[0].Type, tokens[1].Type)
	}

	if _, errs := NewLexerForLiteral("hello world").Tokenize(); len(errs) == 0 {
		t.Errorf("plain text should not lex as a literal")
	}
}

func TestLexRejectsMalformed(t *testing.T) {
	// no equals, unbalanced paren, unclosed string, two numbers in a row
	bad := []string{"1+2", "=(1+2", "=\"oops", "=1 2"}
	for _, input := range bad {
		if _, errs := NewLexer(input).Tokenize(); len(errs) == 0 {
			t.Errorf("Tokenize(%q) should have failed", input)
		}
	}
}
