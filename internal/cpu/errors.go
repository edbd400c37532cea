package cpu

import "github.com/mrc-go/mrc/internal/errs"

var errDivideByZero = errs.New(errs.ErrDivideByZero, "divide by zero")

var errUninitializedVector = errs.New(errs.InvalidAddress, "uninitialized interrupt vector")
