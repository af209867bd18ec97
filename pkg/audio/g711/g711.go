// Package g711 implements ITU-T G.711 µ-law and A-law companding for
// 16-bit linear PCM. Both directions are provided: the playout path
// compands outbound frames, and the decode direction supports uplink
// tooling and round-trip tests.
//
// All functions are pure and safe for concurrent use.
package g711

const (
	ulawBias = 0x84
	ulawClip = 32635
)

// segAEnd holds the A-law segment upper bounds on the 13-bit magnitude scale.
var segAEnd = [8]int32{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

// EncodeMuLaw compands one 16-bit PCM sample to an 8-bit µ-law value.
func EncodeMuLaw(pcm int16) byte {
	x := int32(pcm)
	var sign byte
	if x < 0 {
		x = -x
		sign = 0x80
	}
	if x > ulawClip {
		x = ulawClip
	}
	x += ulawBias

	exp := 7
	for mask := int32(0x4000); exp > 0 && x&mask == 0; mask >>= 1 {
		exp--
	}
	mant := byte(x>>(uint(exp)+3)) & 0x0F
	return ^(sign | byte(exp)<<4 | mant)
}

// DecodeMuLaw expands one 8-bit µ-law value to a 16-bit PCM sample.
func DecodeMuLaw(u byte) int16 {
	u = ^u
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	x := ((int32(mant)<<3 + ulawBias) << exp) - ulawBias
	if u&0x80 != 0 {
		x = -x
	}
	return int16(x)
}

// EncodeALaw compands one 16-bit PCM sample to an 8-bit A-law value.
func EncodeALaw(pcm int16) byte {
	// A-law operates on a 13-bit magnitude.
	x := int32(pcm) >> 3

	var mask byte = 0xD5
	if x < 0 {
		mask = 0x55
		x = -x - 1
	}

	seg := 0
	for seg < 8 && x > segAEnd[seg] {
		seg++
	}
	if seg >= 8 {
		return 0x7F ^ mask
	}

	aval := byte(seg) << 4
	if seg < 2 {
		aval |= byte(x>>1) & 0x0F
	} else {
		aval |= byte(x>>uint(seg)) & 0x0F
	}
	return aval ^ mask
}

// DecodeALaw expands one 8-bit A-law value to a 16-bit PCM sample.
func DecodeALaw(a byte) int16 {
	a ^= 0x55

	t := int32(a&0x0F) << 4
	seg := (a & 0x70) >> 4
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}

// EncodeMuLawSlice compands a block of PCM samples to µ-law bytes.
func EncodeMuLawSlice(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = EncodeMuLaw(s)
	}
	return out
}

// DecodeMuLawSlice expands a block of µ-law bytes to PCM samples.
func DecodeMuLawSlice(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = DecodeMuLaw(b)
	}
	return out
}

// EncodeALawSlice compands a block of PCM samples to A-law bytes.
func EncodeALawSlice(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = EncodeALaw(s)
	}
	return out
}

// DecodeALawSlice expands a block of A-law bytes to PCM samples.
func DecodeALawSlice(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = DecodeALaw(b)
	}
	return out
}
