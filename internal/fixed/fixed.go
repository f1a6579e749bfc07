// Package fixed implements the Q8.8 fixed-point arithmetic used by every
// pipeline stage: signed 16-bit values with 8 fractional bits, widened to
// 32 bits inside accumulation chains, rounded and saturated on the way out.
package fixed

// Q88 is a signed 16-bit fixed-point value with 8 fractional bits.
type Q88 int16

// Acc is the widened accumulator type. Products of two Q88 values and sums
// of such products stay in Acc until they leave the accumulation chain.
type Acc int32

// Quantization constants
const (
	FracBits = 8 // fractional bits in Q8.8

	One   Q88 = 1 << FracBits // 1.0 = 0x0100
	Half  Q88 = 1 << (FracBits - 1)
	Three Q88 = 3 << FracBits
	Six   Q88 = 6 << FracBits

	Max Q88 = 32767
	Min Q88 = -32768
)

// MAC computes acc + a*b in the widened accumulator. No rounding or
// saturation happens here; the result carries 16 fractional bits.
func MAC(a, b Q88, acc Acc) Acc {
	return acc + Acc(a)*Acc(b)
}

// Round converts a raw accumulator (16 fractional bits) back to 8
// fractional bits: add half an LSB, then arithmetic shift right.
func Round(acc Acc) Acc {
	return (acc + 1<<(FracBits-1)) >> FracBits
}

// Saturate clips a widened value to the representable Q8.8 range. Clipping
// is the sole overflow policy; nothing in the pipeline wraps.
func Saturate(acc Acc) Q88 {
	if acc > Acc(Max) {
		return Max
	}
	if acc < Acc(Min) {
		return Min
	}
	return Q88(acc)
}

// Mul multiplies two Q88 values with round and saturate applied, for use
// outside accumulation chains.
func Mul(a, b Q88) Q88 {
	return Saturate(Round(MAC(a, b, 0)))
}

// FromFloat quantizes a float to Q8.8, clamping out-of-range values.
func FromFloat(f float64) Q88 {
	scaled := f * float64(int(One))
	if scaled >= 0 {
		scaled += 0.5
	} else {
		scaled -= 0.5
	}
	if scaled > float64(Max) {
		return Max
	}
	if scaled < float64(Min) {
		return Min
	}
	return Q88(int32(scaled))
}

// Float returns the real value represented by q.
func (q Q88) Float() float64 {
	return float64(q) / float64(int(One))
}
