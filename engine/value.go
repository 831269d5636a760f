package engine

// Primitive represents basic cell value types.
// types:
//   - Quantity: numeric values with a unit (dimensionless included)
//   - string: text values
//   - bool: boolean values (TRUE/FALSE)
//   - nil: empty/null cells
//   - *CellError: error values (#DIV/0!, #UNIT!, etc.)
type Primitive any

// Quantity is a number bound to a unit. Plain numbers are quantities with
// the dimensionless unit, so arithmetic has exactly one code path.
type Quantity struct {
	Value float64
	Unit  Unit
}

// Number creates a dimensionless quantity.
func Number(v float64) Quantity {
	return Quantity{Value: v}
}

// ErrorCode represents cell-level error codes following Excel conventions,
// extended with the unit-system errors.
type ErrorCode uint8

const (
	ErrorCodeNull    ErrorCode = 1  // #NULL! - no cells in common between ranges
	ErrorCodeDiv0    ErrorCode = 2  // #DIV/0! - division by zero
	ErrorCodeValue   ErrorCode = 3  // #VALUE! - wrong type of argument or operand
	ErrorCodeRef     ErrorCode = 4  // #REF! - invalid or deleted cell reference
	ErrorCodeName    ErrorCode = 5  // #NAME? - unrecognized function name
	ErrorCodeNum     ErrorCode = 6  // #NUM! - number too large or small to be represented
	ErrorCodeNA      ErrorCode = 7  // #N/A - not enough arguments for function
	ErrorCodeOther   ErrorCode = 8  // #ERROR! - all other errors
	ErrorCodeSyntax  ErrorCode = 9  // #SYNTAX? - formula failed to parse
	ErrorCodeUnit    ErrorCode = 10 // #UNIT! - operation invalid for the operand units
	ErrorCodeConvert ErrorCode = 11 // #CONVERT! - conversion between incompatible dimensions
	ErrorCodeCirc    ErrorCode = 12 // #CIRC! - cell participates in a reference cycle
)

// ErrorMapper maps error code numbers to their display representations
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeNull:    "#NULL!",
	ErrorCodeDiv0:    "#DIV/0!",
	ErrorCodeValue:   "#VALUE!",
	ErrorCodeRef:     "#REF!",
	ErrorCodeName:    "#NAME?",
	ErrorCodeNum:     "#NUM!",
	ErrorCodeNA:      "#N/A",
	ErrorCodeOther:   "#ERROR!",
	ErrorCodeSyntax:  "#SYNTAX?",
	ErrorCodeUnit:    "#UNIT!",
	ErrorCodeConvert: "#CONVERT!",
	ErrorCodeCirc:    "#CIRC!",
}

// CellError preserves the error code for display in cells. Errors are
// first-class cell values: any formula reading an errored cell yields the
// same error.
type CellError struct {
	ErrorCode ErrorCode
	Message   string
}

func (e *CellError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrorMapper[e.ErrorCode]
}

// Display returns the short cell-facing form regardless of message.
func (e *CellError) Display() string {
	return ErrorMapper[e.ErrorCode]
}

func NewCellError(code ErrorCode, message string) *CellError {
	if message == "" {
		message = ErrorMapper[code]
	}
	return &CellError{
		ErrorCode: code,
		Message:   message,
	}
}

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error. Errors raised by APIs that do not return enough error
	// information may be converted to this error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates client specified an invalid argument.
	InvalidArgument AppErrorCode = 3

	// NotFound means some requested entity (e.g., sheet or named range)
	// was not found.
	NotFound AppErrorCode = 5

	// AlreadyExists means an attempt to create an entity failed because one
	// already exists.
	AlreadyExists AppErrorCode = 6

	// FailedPrecondition indicates operation was rejected because the
	// system is not in a state required for the operation's execution.
	FailedPrecondition AppErrorCode = 9

	// OutOfRange means operation was attempted past the valid range.
	OutOfRange AppErrorCode = 11

	// Unimplemented indicates operation is not implemented or not
	// supported/enabled in this service.
	Unimplemented AppErrorCode = 12

	// Internal errors. Means some invariants expected by underlying
	// system has been broken.
	Internal AppErrorCode = 13
)

// AppError represents errors at the application level (not
// cell formula errors)
type AppError struct {
	Code    AppErrorCode
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}
