package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// clamp 钳位到 [-1.0, 1.0]。
func clamp(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}

// Float32ToPCM 将 [-1.0, 1.0] 范围的 float32 样本编码为指定格式的原始 PCM 字节。
func Float32ToPCM(in []float32, format Format) ([]byte, error) {
	width := format.Width()
	if width == 0 {
		return nil, fmt.Errorf("%w: format=%s", ErrUnsupportedSampleWidth, format)
	}

	out := make([]byte, len(in)*width)
	for i, s := range in {
		s = clamp(s)
		switch format {
		case FormatU8:
			// U8 以 128 为零点
			out[i] = uint8(int(s*math.MaxInt8) + 128)
		case FormatS16LE:
			binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s*math.MaxInt16)))
		case FormatS32LE:
			binary.LittleEndian.PutUint32(out[4*i:], uint32(int32(float64(s)*math.MaxInt32)))
		}
	}
	return out, nil
}

// Float32ToS16 便捷函数：float32 样本直接编码为 S16_LE 字节。
func Float32ToS16(in []float32) []byte {
	out, _ := Float32ToPCM(in, FormatS16LE)
	return out
}
