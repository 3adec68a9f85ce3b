package seq

import (
	"math/bits"

	"github.com/boljen/go-bitmap"
)

// GetBit returns bit i of an LSB-first packed buffer.
func GetBit(buf []byte, i int) bool {
	return bitmap.Bitmap(buf).Get(i)
}

// SetBit sets bit i of an LSB-first packed buffer.
func SetBit(buf []byte, i int, v bool) {
	bitmap.Bitmap(buf).Set(i, v)
}

// CopyBits copies n bits from src starting at bit srcOff into dst starting
// at bit dstOff.
func CopyBits(dst []byte, dstOff int, src []byte, srcOff int, n int) {
	for i := 0; i < n; i++ {
		SetBit(dst, dstOff+i, GetBit(src, srcOff+i))
	}
}

// Fill sets the first n bits of buf to v.
func Fill(buf []byte, n int, v bool) {
	for i := 0; i < n; i++ {
		SetBit(buf, i, v)
	}
}

// ByteLen returns the number of bytes needed to hold n bits.
func ByteLen(n int) int {
	return (n + 7) / 8
}

// ReverseBitsInPlace mirrors the bit order of every byte in buf. The data
// register API is MSB-first within each byte while the wire is LSB-first.
func ReverseBitsInPlace(buf []byte) {
	for i, b := range buf {
		buf[i] = bits.Reverse8(b)
	}
}

// PutUint packs the low n bits of v LSB-first into buf.
func PutUint(buf []byte, v uint64, n int) {
	for i := 0; i < n; i++ {
		SetBit(buf, i, v&(1<<uint(i)) != 0)
	}
}

// Uint unpacks n LSB-first bits of buf.
func Uint(buf []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		if GetBit(buf, i) {
			v |= 1 << uint(i)
		}
	}
	return v
}
