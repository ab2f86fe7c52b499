// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import "math"

// DefaultEpsilon is the default tolerance used by comparison operators.
const DefaultEpsilon = 1e-12

// IsInteger returns true if v has no fractional part.
func IsInteger(v float64) bool {
	return v == math.Trunc(v) && !math.IsInf(v, 0)
}

// IsEvenInteger returns true if v is an even integer.
func IsEvenInteger(v float64) bool {
	return IsInteger(v) && math.Mod(v, 2) == 0
}

// IsOddInteger returns true if v is an odd integer.
func IsOddInteger(v float64) bool {
	return IsInteger(v) && math.Mod(v, 2) != 0
}

// Int rounds half away from zero.
func Int(v float64) float64 {
	if v < 0 {
		return math.Ceil(v - 0.5)
	}
	return math.Floor(v + 0.5)
}

// Truth converts a value to a logical truth value.
func Truth(v float64) bool { return math.Abs(v) >= 0.5 }

// AbsTruth is Truth for values known to be non-negative.
func AbsTruth(v float64) bool { return v >= 0.5 }

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Equal compares a and b within the tolerance eps.
func Equal(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

// Less returns true if a is less than b by more than eps.
func Less(a, b, eps float64) bool { return a < b-eps }

// LessOrEq returns true if a is less than b or within eps of it.
func LessOrEq(a, b, eps float64) bool { return a <= b+eps }

// Powi raises x to the integer power n by repeated squaring.
func Powi(x float64, n int64) float64 {
	if n < 0 {
		return 1 / Powi(x, -n)
	}
	r := 1.0
	for n > 0 {
		if n&1 != 0 {
			r *= x
		}
		n >>= 1
		x *= x
	}
	return r
}

// Pow raises x to the power y. Integer exponents are computed exactly by
// repeated squaring; negative bases with fractional exponents yield the
// negated power of the magnitude unless 16y is an integer.
func Pow(x, y float64) float64 {
	if x == 1 {
		return 1
	}
	if IsInteger(y) && math.Abs(y) < 1<<53 {
		if y >= 0 {
			return Powi(x, int64(y))
		}
		return 1 / Powi(x, int64(-y))
	}
	if y >= 0 {
		switch {
		case x > 0:
			return math.Exp(math.Log(x) * y)
		case x == 0:
			return 0
		case !IsInteger(y * 16):
			return -math.Exp(math.Log(-x) * y)
		}
	} else {
		switch {
		case x > 0:
			return math.Exp(math.Log(1/x) * -y)
		case x < 0 && !IsInteger(y*-16):
			return -math.Exp(math.Log(-1/x) * -y)
		}
	}
	return math.Pow(x, y)
}

// Mod returns the floating-point remainder of a/b.
func Mod(a, b float64) float64 { return math.Mod(a, b) }

// Exp2 returns 2^x.
func Exp2(x float64) float64 { return math.Exp2(x) }

// Log2by returns log2(a)*b.
func Log2by(a, b float64) float64 { return math.Log2(a) * b }

// RadiansToDegrees converts an angle in radians to degrees.
func RadiansToDegrees(v float64) float64 { return v * (180 / math.Pi) }

// DegreesToRadians converts an angle in degrees to radians.
func DegreesToRadians(v float64) float64 { return v * (math.Pi / 180) }

// Apply computes the result of a side-effect free opcode for the given
// arguments. It returns an error code instead of a value when the
// arguments lie outside the opcode's domain. The ok result is false for
// opcodes that cannot be applied this way.
func Apply(op Opcode, a []float64, eps float64) (v float64, err Error, ok bool) {
	x := func(i int) float64 { return a[i] }
	switch op {
	case OpAbs:
		return math.Abs(x(0)), ErrNone, true
	case OpAcos:
		if x(0) < -1 || x(0) > 1 {
			return 0, ErrTrigDomain, true
		}
		return math.Acos(x(0)), ErrNone, true
	case OpAcosh:
		if x(0) < 1 {
			return 0, ErrTrigDomain, true
		}
		return math.Acosh(x(0)), ErrNone, true
	case OpAsin:
		if x(0) < -1 || x(0) > 1 {
			return 0, ErrTrigDomain, true
		}
		return math.Asin(x(0)), ErrNone, true
	case OpAsinh:
		return math.Asinh(x(0)), ErrNone, true
	case OpAtan:
		return math.Atan(x(0)), ErrNone, true
	case OpAtan2:
		return math.Atan2(x(0), x(1)), ErrNone, true
	case OpAtanh:
		if x(0) <= -1 || x(0) >= 1 {
			return 0, ErrTrigDomain, true
		}
		return math.Atanh(x(0)), ErrNone, true
	case OpCbrt:
		return math.Cbrt(x(0)), ErrNone, true
	case OpCeil:
		return math.Ceil(x(0)), ErrNone, true
	case OpCos:
		return math.Cos(x(0)), ErrNone, true
	case OpCosh:
		return math.Cosh(x(0)), ErrNone, true
	case OpCot:
		t := math.Tan(x(0))
		if t == 0 {
			return 0, ErrDivByZero, true
		}
		return 1 / t, ErrNone, true
	case OpCsc:
		s := math.Sin(x(0))
		if s == 0 {
			return 0, ErrDivByZero, true
		}
		return 1 / s, ErrNone, true
	case OpExp:
		return math.Exp(x(0)), ErrNone, true
	case OpExp2:
		return Exp2(x(0)), ErrNone, true
	case OpFloor:
		return math.Floor(x(0)), ErrNone, true
	case OpHypot:
		return math.Hypot(x(0), x(1)), ErrNone, true
	case OpInt:
		return Int(x(0)), ErrNone, true
	case OpLog:
		if !(x(0) > 0) {
			return 0, ErrLogDomain, true
		}
		return math.Log(x(0)), ErrNone, true
	case OpLog10:
		if !(x(0) > 0) {
			return 0, ErrLogDomain, true
		}
		return math.Log10(x(0)), ErrNone, true
	case OpLog2:
		if !(x(0) > 0) {
			return 0, ErrLogDomain, true
		}
		return math.Log2(x(0)), ErrNone, true
	case OpMax:
		return math.Max(x(0), x(1)), ErrNone, true
	case OpMin:
		return math.Min(x(0), x(1)), ErrNone, true
	case OpPow:
		if x(0) == 0 && x(1) < 0 {
			return 0, ErrLogDomain, true
		}
		return Pow(x(0), x(1)), ErrNone, true
	case OpSec:
		c := math.Cos(x(0))
		if c == 0 {
			return 0, ErrDivByZero, true
		}
		return 1 / c, ErrNone, true
	case OpSin:
		return math.Sin(x(0)), ErrNone, true
	case OpSinh:
		return math.Sinh(x(0)), ErrNone, true
	case OpSqrt:
		if x(0) < 0 {
			return 0, ErrSqrtDomain, true
		}
		return math.Sqrt(x(0)), ErrNone, true
	case OpTan:
		return math.Tan(x(0)), ErrNone, true
	case OpTanh:
		return math.Tanh(x(0)), ErrNone, true
	case OpTrunc:
		return math.Trunc(x(0)), ErrNone, true
	case OpNeg:
		return -x(0), ErrNone, true
	case OpAdd:
		return x(0) + x(1), ErrNone, true
	case OpSub:
		return x(0) - x(1), ErrNone, true
	case OpMul:
		return x(0) * x(1), ErrNone, true
	case OpDiv:
		if x(1) == 0 {
			return 0, ErrDivByZero, true
		}
		return x(0) / x(1), ErrNone, true
	case OpMod:
		if x(1) == 0 {
			return 0, ErrDivByZero, true
		}
		return Mod(x(0), x(1)), ErrNone, true
	case OpEqual:
		return b2f(Equal(x(0), x(1), eps)), ErrNone, true
	case OpNEqual:
		return b2f(!Equal(x(0), x(1), eps)), ErrNone, true
	case OpLess:
		return b2f(Less(x(0), x(1), eps)), ErrNone, true
	case OpLessOrEq:
		return b2f(LessOrEq(x(0), x(1), eps)), ErrNone, true
	case OpGreater:
		return b2f(Less(x(1), x(0), eps)), ErrNone, true
	case OpGreaterOrEq:
		return b2f(LessOrEq(x(1), x(0), eps)), ErrNone, true
	case OpNot:
		return b2f(!Truth(x(0))), ErrNone, true
	case OpNotNot:
		return b2f(Truth(x(0))), ErrNone, true
	case OpAnd:
		return b2f(Truth(x(0)) && Truth(x(1))), ErrNone, true
	case OpOr:
		return b2f(Truth(x(0)) || Truth(x(1))), ErrNone, true
	case OpAbsNot:
		return b2f(!AbsTruth(x(0))), ErrNone, true
	case OpAbsNotNot:
		return b2f(AbsTruth(x(0))), ErrNone, true
	case OpAbsAnd:
		return b2f(AbsTruth(x(0)) && AbsTruth(x(1))), ErrNone, true
	case OpAbsOr:
		return b2f(AbsTruth(x(0)) || AbsTruth(x(1))), ErrNone, true
	case OpDeg:
		return RadiansToDegrees(x(0)), ErrNone, true
	case OpRad:
		return DegreesToRadians(x(0)), ErrNone, true
	case OpLog2by:
		if x(0) <= 0 {
			return 0, ErrLogDomain, true
		}
		return Log2by(x(0), x(1)), ErrNone, true
	case OpInv:
		if x(0) == 0 {
			return 0, ErrDivByZero, true
		}
		return 1 / x(0), ErrNone, true
	case OpSqr:
		return x(0) * x(0), ErrNone, true
	case OpRSqrt:
		if x(0) == 0 {
			return 0, ErrDivByZero, true
		}
		return 1 / math.Sqrt(x(0)), ErrNone, true
	}
	return 0, ErrNone, false
}
