package engine

import (
	"fmt"
	"strconv"
	"strings"
)

type NodePosition struct {
	Start int
	End   int
}

// AST enables dependency extraction, formula transformation, and
// reference rewriting through tree traversal rather than regex/string
// manipulation. ToString regenerates valid formula text, which is how
// structural edits rewrite stored formulas.
type ASTNode interface {
	Eval(ctx *EvalContext) (Primitive, error)
	GetPosition() NodePosition
	ToString() string
}

// ParserContext provides context for parsing references
type ParserContext struct {
	CurrentSheet string
	Registry     *UnitRegistry
}

// Parser parses tokens into an AST
type Parser struct {
	tokens  []Token
	pos     int
	context *ParserContext
}

// StringNode represents a string literal
type StringNode struct {
	Value    string
	Position NodePosition
}

func (n *StringNode) Eval(ctx *EvalContext) (Primitive, error) {
	return n.Value, nil
}

func (n *StringNode) GetPosition() NodePosition {
	return n.Position
}

func (n *StringNode) ToString() string {
	// Escape quotes in string
	escaped := strings.ReplaceAll(n.Value, "\"", "\"\"")
	return fmt.Sprintf("\"%s\"", escaped)
}

// NumberNode represents a numeric literal with an optional unit suffix
type NumberNode struct {
	Value    float64
	Unit     Unit
	Position NodePosition
}

func (n *NumberNode) Eval(ctx *EvalContext) (Primitive, error) {
	return Quantity{Value: n.Value, Unit: n.Unit}, nil
}

func (n *NumberNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NumberNode) ToString() string {
	// Format number without unnecessary decimals
	var num string
	if n.Value == float64(int64(n.Value)) {
		num = fmt.Sprintf("%d", int64(n.Value))
	} else {
		num = fmt.Sprintf("%g", n.Value)
	}
	if n.Unit.IsDimensionless() {
		return num
	}
	return num + " " + n.Unit.Symbol()
}

// BooleanNode represents a boolean literal
type BooleanNode struct {
	Value    bool
	Position NodePosition
}

func (n *BooleanNode) Eval(ctx *EvalContext) (Primitive, error) {
	return n.Value, nil
}

func (n *BooleanNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BooleanNode) ToString() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

// ErrorNode represents an error literal such as #REF!. Structural edits
// rewrite deleted references to this node, and the regenerated formula
// text parses back to it.
type ErrorNode struct {
	Code     ErrorCode
	Position NodePosition
}

func (n *ErrorNode) Eval(ctx *EvalContext) (Primitive, error) {
	return NewCellError(n.Code, ""), nil
}

func (n *ErrorNode) GetPosition() NodePosition {
	return n.Position
}

func (n *ErrorNode) ToString() string {
	return ErrorMapper[n.Code]
}

// CellRefNode represents a cell reference with absolute coordinates.
// AbsRow/AbsCol record the $ markers; they matter when structural edits
// decide whether a reference shifts.
type CellRefNode struct {
	Sheet    string // empty means the formula's own sheet
	Row      int
	Col      int
	AbsRow   bool
	AbsCol   bool
	Position NodePosition
}

// Address resolves the reference against the sheet the formula lives on.
func (n *CellRefNode) Address(currentSheet string) CellAddress {
	sheet := n.Sheet
	if sheet == "" {
		sheet = currentSheet
	}
	return CellAddress{Sheet: sheet, Row: n.Row, Col: n.Col}
}

func (n *CellRefNode) Eval(ctx *EvalContext) (Primitive, error) {
	if n.Row < 0 || n.Col < 0 {
		return nil, NewCellError(ErrorCodeRef, "invalid cell reference")
	}
	return ctx.cellValue(n.Address(ctx.addr.Sheet))
}

func (n *CellRefNode) GetPosition() NodePosition {
	return n.Position
}

func (n *CellRefNode) ToString() string {
	out := ""
	if n.Sheet != "" {
		out = n.Sheet + "!"
	}
	if n.AbsCol {
		out += "$"
	}
	out += ColumnLabel(n.Col)
	if n.AbsRow {
		out += "$"
	}
	return out + strconv.Itoa(n.Row+1)
}

// RangeNode represents a rectangular range of cells
type RangeNode struct {
	Sheet       string
	StartRow    int
	StartCol    int
	EndRow      int
	EndCol      int
	AbsStartRow bool
	AbsStartCol bool
	AbsEndRow   bool
	AbsEndCol   bool
	Position    NodePosition
}

// Address resolves the range against the sheet the formula lives on.
func (n *RangeNode) Address(currentSheet string) RangeAddress {
	sheet := n.Sheet
	if sheet == "" {
		sheet = currentSheet
	}
	return RangeAddress{
		Start: CellAddress{Sheet: sheet, Row: n.StartRow, Col: n.StartCol},
		End:   CellAddress{Sheet: sheet, Row: n.EndRow, Col: n.EndCol},
	}.Normalize()
}

func (n *RangeNode) Eval(ctx *EvalContext) (Primitive, error) {
	if n.StartRow < 0 || n.StartCol < 0 || n.EndRow < 0 || n.EndCol < 0 {
		return nil, NewCellError(ErrorCodeRef, "invalid range reference")
	}
	return ctx.rangeValue(n.Address(ctx.addr.Sheet))
}

func (n *RangeNode) GetPosition() NodePosition {
	return n.Position
}

func (n *RangeNode) ToString() string {
	start := &CellRefNode{Sheet: n.Sheet, Row: n.StartRow, Col: n.StartCol, AbsRow: n.AbsStartRow, AbsCol: n.AbsStartCol}
	end := &CellRefNode{Row: n.EndRow, Col: n.EndCol, AbsRow: n.AbsEndRow, AbsCol: n.AbsEndCol}
	return start.ToString() + ":" + end.ToString()
}

// NamedRangeNode represents a named range reference
type NamedRangeNode struct {
	Name     string
	Position NodePosition
}

func (n *NamedRangeNode) Eval(ctx *EvalContext) (Primitive, error) {
	return ctx.namedValue(n.Name)
}

func (n *NamedRangeNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NamedRangeNode) ToString() string {
	return n.Name
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op       BinaryOp
	Left     ASTNode
	Right    ASTNode
	Position NodePosition
}

func (n *BinaryOpNode) Eval(ctx *EvalContext) (Primitive, error) {
	leftVal, err := n.Left.Eval(ctx)
	if err != nil {
		leftVal = asCellError(err)
	}
	rightVal, err := n.Right.Eval(ctx)
	if err != nil {
		rightVal = asCellError(err)
	}

	// propagate errors
	if cellErr, ok := leftVal.(*CellError); ok {
		return cellErr, nil
	}
	if cellErr, ok := rightVal.(*CellError); ok {
		return cellErr, nil
	}

	return ctx.applyBinary(n.Op, leftVal, rightVal)
}

func (n *BinaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BinaryOpNode) ToString() string {
	opStr := ""
	switch n.Op {
	case BinOpAdd:
		opStr = "+"
	case BinOpSubtract:
		opStr = "-"
	case BinOpMultiply:
		opStr = "*"
	case BinOpDivide:
		opStr = "/"
	case BinOpPower:
		opStr = "^"
	case BinOpConcat:
		opStr = "&"
	case BinOpEqual:
		opStr = "="
	case BinOpNotEqual:
		opStr = "<>"
	case BinOpLess:
		opStr = "<"
	case BinOpLessEqual:
		opStr = "<="
	case BinOpGreater:
		opStr = ">"
	case BinOpGreaterEqual:
		opStr = ">="
	}
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), opStr, n.Right.ToString())
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op       UnaryOp
	Operand  ASTNode
	Position NodePosition
}

func (n *UnaryOpNode) Eval(ctx *EvalContext) (Primitive, error) {
	val, err := n.Operand.Eval(ctx)
	if err != nil {
		val = asCellError(err)
	}

	// Check for error in value and propagate it
	if cellErr, ok := val.(*CellError); ok {
		return cellErr, nil
	}

	q, ok := toQuantity(val)
	if !ok {
		return nil, NewCellError(ErrorCodeValue, "unary operator requires a numeric value")
	}

	switch n.Op {
	case UnaryOpPlus:
		return q, nil
	case UnaryOpMinus:
		return Quantity{Value: -q.Value, Unit: q.Unit}, nil
	case UnaryOpPercent:
		return Quantity{Value: q.Value / 100.0, Unit: q.Unit}, nil
	default:
		return nil, NewCellError(ErrorCodeValue, "unknown unary operator")
	}
}

func (n *UnaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *UnaryOpNode) ToString() string {
	opStr := ""
	switch n.Op {
	case UnaryOpPlus:
		opStr = "+"
	case UnaryOpMinus:
		opStr = "-"
	case UnaryOpPercent:
		return fmt.Sprintf("(%s%%)", n.Operand.ToString())
	}
	return fmt.Sprintf("%s%s", opStr, n.Operand.ToString())
}

// FunctionCallNode represents a function call
type FunctionCallNode struct {
	Name     string
	Args     []ASTNode
	Position NodePosition
}

func (n *FunctionCallNode) Eval(ctx *EvalContext) (Primitive, error) {
	// Evaluate arguments. Error values are passed through as values;
	// functions decide how to handle them.
	args := make([]any, len(n.Args))
	for i, argNode := range n.Args {
		argVal, err := argNode.Eval(ctx)
		if err != nil {
			args[i] = asCellError(err)
		} else {
			args[i] = argVal
		}
	}

	result, err := ctx.callFunction(n.Name, args...)
	if err != nil {
		if cellErr, ok := err.(*CellError); ok {
			return nil, cellErr
		}
		return nil, NewCellError(ErrorCodeValue, err.Error())
	}

	return result, nil
}

func (n *FunctionCallNode) GetPosition() NodePosition {
	return n.Position
}

func (n *FunctionCallNode) ToString() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToString()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

// asCellError coerces an evaluation error into an error value.
func asCellError(err error) *CellError {
	if cellErr, ok := err.(*CellError); ok {
		return cellErr
	}
	return NewCellError(ErrorCodeValue, err.Error())
}

// NewParser creates a new parser with the given tokens and context
func NewParser(tokens []Token, context *ParserContext) *Parser {
	return &Parser{
		tokens:  tokens,
		pos:     0,
		context: context,
	}
}

// ParseFormula lexes and parses formula text ("=A1+B1") into an AST.
func ParseFormula(source string, context *ParserContext) (ASTNode, error) {
	tokens, lexErrors := NewLexer(source).Tokenize()
	if len(lexErrors) > 0 {
		return nil, NewCellError(ErrorCodeSyntax, lexErrors[0])
	}
	return NewParser(tokens, context).Parse()
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() (ASTNode, error) {
	if len(p.tokens) == 0 {
		return nil, NewCellError(ErrorCodeSyntax, "no tokens to parse")
	}

	// Expect and skip the equals prefix
	if p.tokens[p.pos].Type != TokenEquals {
		return nil, NewCellError(ErrorCodeSyntax, "formula must start with '='")
	}
	p.pos++ // consume the equals token

	// Parse the expression
	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	// Ensure we've consumed all tokens except EOF
	if p.pos < len(p.tokens)-1 || (p.pos < len(p.tokens) && p.tokens[p.pos].Type != TokenEOF) {
		return nil, NewCellError(ErrorCodeSyntax, fmt.Sprintf("unexpected token after expression: %s", p.tokens[p.pos].Value))
	}

	return node, nil
}

// parseComparison handles comparison operators (lowest precedence)
func (p *Parser) parseComparison() (ASTNode, error) {
	left, err := p.parseConcatenation()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "=":
			op = BinOpEqual
		case "<>", "!=":
			op = BinOpNotEqual
		case "<":
			op = BinOpLess
		case "<=":
			op = BinOpLessEqual
		case ">":
			op = BinOpGreater
		case ">=":
			op = BinOpGreaterEqual
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseConcatenation()
		if err != nil {
			return nil, err
		}

		left = &BinaryOpNode{
			Op:       op,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}
	}

	return left, nil
}

// parseConcatenation handles string concatenation operator
func (p *Parser) parseConcatenation() (ASTNode, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp || tok.Value != "&" {
			break
		}

		p.pos++
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}

		left = &BinaryOpNode{
			Op:       BinOpConcat,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}
	}

	return left, nil
}

// parseAddition handles addition and subtraction
func (p *Parser) parseAddition() (ASTNode, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "+":
			op = BinOpAdd
		case "-":
			op = BinOpSubtract
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}

		left = &BinaryOpNode{
			Op:       op,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}
	}

	return left, nil
}

// parseMultiplication handles multiplication and division
func (p *Parser) parseMultiplication() (ASTNode, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "*":
			op = BinOpMultiply
		case "/":
			op = BinOpDivide
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}

		left = &BinaryOpNode{
			Op:       op,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}
	}

	return left, nil
}

// parsePower handles exponentiation
func (p *Parser) parsePower() (ASTNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	// right-associative
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenBinaryOp && p.tokens[p.pos].Value == "^" {
		p.pos++
		right, err := p.parsePower() // recursive for right-associativity
		if err != nil {
			return nil, err
		}

		return &BinaryOpNode{
			Op:       BinOpPower,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}, nil
	}

	return left, nil
}

// parseUnary handles unary operators
func (p *Parser) parseUnary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, NewCellError(ErrorCodeSyntax, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]

	// check for unary operators
	if tok.Type == TokenUnaryPrefixOp {
		var op UnaryOp
		switch tok.Value {
		case "+":
			op = UnaryOpPlus
		case "-":
			op = UnaryOpMinus
		default:
			// not a unary operator, continue to parsePostfix
			return p.parsePostfix()
		}

		startPos := tok.Pos
		p.pos++
		operand, err := p.parseUnary() // recurse for chained unary operators
		if err != nil {
			return nil, err
		}

		return &UnaryOpNode{
			Op:       op,
			Operand:  operand,
			Position: NodePosition{Start: startPos, End: operand.GetPosition().End},
		}, nil
	}

	return p.parsePostfix()
}

// parsePostfix handles postfix operators (percent)
func (p *Parser) parsePostfix() (ASTNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	// check for postfix percent
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenUnaryPostfixOp && p.tokens[p.pos].Value == "%" {
		endPos := p.tokens[p.pos].Pos + 1
		p.pos++

		return &UnaryOpNode{
			Op:       UnaryOpPercent,
			Operand:  node,
			Position: NodePosition{Start: node.GetPosition().Start, End: endPos},
		}, nil
	}

	return node, nil
}

// parsePrimary handles primary expressions (literals, references,
// functions, parentheses)
func (p *Parser) parsePrimary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, NewCellError(ErrorCodeSyntax, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]

	switch tok.Type {
	case TokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, NewCellError(ErrorCodeSyntax, fmt.Sprintf("invalid number: %s", tok.Value))
		}
		node := &NumberNode{
			Value:    val,
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}
		// optional unit suffix. the suffix is a unit only if every symbol
		// resolves against the registry; anything else is a syntax error,
		// never a silent guess
		if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenUnit {
			unitTok := p.tokens[p.pos]
			p.pos++
			unit, err := p.context.Registry.ParseUnit(unitTok.Value)
			if err != nil {
				return nil, NewCellError(ErrorCodeSyntax, err.Error())
			}
			node.Unit = unit
			node.Position.End = unitTok.Pos + len(unitTok.Value)
		}
		return node, nil

	case TokenString:
		p.pos++
		return &StringNode{
			Value:    tok.Value,
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value) + 2}, // +2 for quotes
		}, nil

	case TokenBoolean:
		p.pos++
		value := tok.Value == "TRUE"
		return &BooleanNode{
			Value:    value,
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenErrorLiteral:
		p.pos++
		code := ErrorCodeOther
		for c, display := range ErrorMapper {
			if display == tok.Value {
				code = c
				break
			}
		}
		return &ErrorNode{
			Code:     code,
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenCell:
		p.pos++
		return p.parseCellReference(tok)

	case TokenRange:
		p.pos++
		return p.parseRange(tok)

	case TokenIdentifier:
		p.pos++
		// could be a named range
		return &NamedRangeNode{
			Name:     tok.Value,
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenFunction:
		return p.parseFunctionCall()

	case TokenLeftParen:
		p.pos++
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}

		if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenRightParen {
			return nil, NewCellError(ErrorCodeSyntax, "expected closing parenthesis")
		}
		p.pos++

		return node, nil

	default:
		return nil, NewCellError(ErrorCodeSyntax, fmt.Sprintf("unexpected token: %s", tok.Value))
	}
}

// parseFunctionCall parses a function call
func (p *Parser) parseFunctionCall() (ASTNode, error) {
	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenFunction {
		return nil, NewCellError(ErrorCodeSyntax, "expected function name")
	}

	funcTok := p.tokens[p.pos]
	funcName := funcTok.Value
	startPos := funcTok.Pos
	p.pos++

	// expect opening parenthesis
	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenLeftParen {
		return nil, NewCellError(ErrorCodeSyntax, "expected '(' after function name")
	}
	p.pos++

	// parse arguments
	args := []ASTNode{}

	// check for empty argument list
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenRightParen {
		p.pos++
		return &FunctionCallNode{
			Name:     funcName,
			Args:     args,
			Position: NodePosition{Start: startPos, End: p.tokens[p.pos-1].Pos + 1},
		}, nil
	}

	// parse arguments
	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if p.pos >= len(p.tokens) {
			return nil, NewCellError(ErrorCodeSyntax, "unexpected end in function arguments")
		}

		if p.tokens[p.pos].Type == TokenRightParen {
			p.pos++
			break
		}

		if p.tokens[p.pos].Type != TokenComma {
			return nil, NewCellError(ErrorCodeSyntax, "expected ',' or ')' in function arguments")
		}
		p.pos++
	}

	return &FunctionCallNode{
		Name:     funcName,
		Args:     args,
		Position: NodePosition{Start: startPos, End: p.tokens[p.pos-1].Pos + 1},
	}, nil
}

// parseCellReference parses a cell reference token into a CellRefNode
func (p *Parser) parseCellReference(tok Token) (ASTNode, error) {
	sheet := ""
	cellStr := tok.Value

	// check for sheet reference (contains !)
	if idx := strings.LastIndex(cellStr, "!"); idx != -1 {
		sheet = stripSheetQuotes(cellStr[:idx])
		cellStr = cellStr[idx+1:]
	}

	row, col, absRow, absCol, err := parseA1(cellStr)
	if err != nil {
		return nil, err
	}

	return &CellRefNode{
		Sheet:    sheet,
		Row:      row,
		Col:      col,
		AbsRow:   absRow,
		AbsCol:   absCol,
		Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
	}, nil
}

// parseRange parses a range token into a RangeNode
func (p *Parser) parseRange(tok Token) (ASTNode, error) {
	sheet := ""
	rangeStr := tok.Value

	if idx := strings.LastIndex(rangeStr, "!"); idx != -1 {
		sheet = stripSheetQuotes(rangeStr[:idx])
		rangeStr = rangeStr[idx+1:]
	}

	parts := strings.Split(rangeStr, ":")
	if len(parts) != 2 {
		return nil, NewCellError(ErrorCodeSyntax, fmt.Sprintf("invalid range format: %s", rangeStr))
	}

	startRow, startCol, absStartRow, absStartCol, err := parseA1(parts[0])
	if err != nil {
		return nil, err
	}
	endRow, endCol, absEndRow, absEndCol, err := parseA1(parts[1])
	if err != nil {
		return nil, err
	}

	return &RangeNode{
		Sheet:       sheet,
		StartRow:    startRow,
		StartCol:    startCol,
		EndRow:      endRow,
		EndCol:      endCol,
		AbsStartRow: absStartRow,
		AbsStartCol: absStartCol,
		AbsEndRow:   absEndRow,
		AbsEndCol:   absEndCol,
		Position:    NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
	}, nil
}

// stripSheetQuotes removes the single quotes around a quoted sheet name.
func stripSheetQuotes(name string) string {
	if strings.HasPrefix(name, "'") && strings.HasSuffix(name, "'") && len(name) >= 2 {
		return name[1 : len(name)-1]
	}
	return name
}

// parseA1 parses a cell address like "A1", "$B$3", or "A$2" into
// zero-based row and column with absolute flags.
func parseA1(cell string) (row, col int, absRow, absCol bool, err error) {
	rest := cell
	if strings.HasPrefix(rest, "$") {
		absCol = true
		rest = rest[1:]
	}

	letterEnd := 0
	for letterEnd < len(rest) {
		ch := rest[letterEnd]
		if ch >= 'A' && ch <= 'Z' || ch >= 'a' && ch <= 'z' {
			letterEnd++
		} else {
			break
		}
	}
	if letterEnd == 0 {
		return 0, 0, false, false, NewCellError(ErrorCodeSyntax, fmt.Sprintf("invalid cell reference: %s", cell))
	}

	colStr := strings.ToUpper(rest[:letterEnd])
	for i, ch := range colStr {
		col = col*26 + int(ch-'A')
		if i < len(colStr)-1 {
			col++ // account for positional notation
		}
	}

	rest = rest[letterEnd:]
	if strings.HasPrefix(rest, "$") {
		absRow = true
		rest = rest[1:]
	}

	rowNum, parseErr := strconv.Atoi(rest)
	if parseErr != nil || rowNum < 1 {
		return 0, 0, false, false, NewCellError(ErrorCodeSyntax, fmt.Sprintf("invalid row number in: %s", cell))
	}
	row = rowNum - 1

	return row, col, absRow, absCol, nil
}

// CollectRefs walks the AST and gathers every cell reference, range
// reference, and named reference, resolved against currentSheet. This is
// how dependency edges are derived.
func CollectRefs(node ASTNode, currentSheet string) (cells []CellAddress, ranges []RangeAddress, names []string) {
	var walk func(n ASTNode)
	walk = func(n ASTNode) {
		switch v := n.(type) {
		case *CellRefNode:
			cells = append(cells, v.Address(currentSheet))
		case *RangeNode:
			ranges = append(ranges, v.Address(currentSheet))
		case *NamedRangeNode:
			names = append(names, v.Name)
		case *BinaryOpNode:
			walk(v.Left)
			walk(v.Right)
		case *UnaryOpNode:
			walk(v.Operand)
		case *FunctionCallNode:
			for _, arg := range v.Args {
				walk(arg)
			}
		}
	}
	walk(node)
	return cells, ranges, names
}

// TransformRefs rebuilds the AST with every cell and range reference
// replaced by the result of the given functions. Structural edits use
// this to shift or invalidate references, then regenerate formula text
// with ToString.
func TransformRefs(node ASTNode, cellF func(*CellRefNode) ASTNode, rangeF func(*RangeNode) ASTNode) ASTNode {
	switch v := node.(type) {
	case *CellRefNode:
		return cellF(v)
	case *RangeNode:
		return rangeF(v)
	case *BinaryOpNode:
		return &BinaryOpNode{
			Op:       v.Op,
			Left:     TransformRefs(v.Left, cellF, rangeF),
			Right:    TransformRefs(v.Right, cellF, rangeF),
			Position: v.Position,
		}
	case *UnaryOpNode:
		return &UnaryOpNode{
			Op:       v.Op,
			Operand:  TransformRefs(v.Operand, cellF, rangeF),
			Position: v.Position,
		}
	case *FunctionCallNode:
		args := make([]ASTNode, len(v.Args))
		for i, arg := range v.Args {
			args[i] = TransformRefs(arg, cellF, rangeF)
		}
		return &FunctionCallNode{Name: v.Name, Args: args, Position: v.Position}
	default:
		return node
	}
}
